package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
)

// Validate checks that values are in range and that the selected backends
// have what they need.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		return errors.New("server.request_timeout must be positive")
	}

	if c.Postgres.DSN != "" && c.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}

	if c.Fees.MaxFeeBps > fixed.Precision {
		return fmt.Errorf("fees.max_fee_bps must be <= %d, got %d", fixed.Precision, c.Fees.MaxFeeBps)
	}
	if c.Fees.PlatformFeeBps > c.Fees.MaxFeeBps {
		return fmt.Errorf("fees.platform_fee_bps (%d) exceeds max_fee_bps (%d)", c.Fees.PlatformFeeBps, c.Fees.MaxFeeBps)
	}
	if c.Fees.EarlyExitFeeBps > c.Fees.MaxFeeBps {
		return fmt.Errorf("fees.early_exit_fee_bps (%d) exceeds max_fee_bps (%d)", c.Fees.EarlyExitFeeBps, c.Fees.MaxFeeBps)
	}

	if _, _, err := c.Limits.Parse(); err != nil {
		return err
	}

	switch c.Lock.Backend {
	case LockMemory:
	case LockRedis:
		if c.Redis.URL == "" {
			return errors.New("lock.backend = redis requires redis.url")
		}
		if c.Lock.TTL.Duration <= 0 {
			return errors.New("lock.ttl must be positive")
		}
	default:
		return fmt.Errorf("lock.backend must be %q or %q, got %q", LockMemory, LockRedis, c.Lock.Backend)
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		return errors.New("s3.region is required when s3.bucket is set")
	}
	return nil
}

// SlogLevel maps log_level to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
}

// Parse returns the limits as integers.
func (l LimitsConfig) Parse() (maxBet, maxOpenStake uint256.Int, err error) {
	if maxBet, err = parseAmount("limits.max_bet", l.MaxBet); err != nil {
		return
	}
	maxOpenStake, err = parseAmount("limits.max_open_stake_per_market", l.MaxOpenStakePerMarket)
	return
}

func parseAmount(field, s string) (uint256.Int, error) {
	if s == "" {
		return uint256.Int{}, nil
	}
	v, err := fixed.Parse(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
