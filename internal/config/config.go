// Package config loads the engine's settings from a TOML file, an optional
// .env file and ENGINE_* environment variables, in that order of
// precedence from lowest to highest.
package config

import "time"

// Config is the root configuration.
type Config struct {
	LogLevel string         `toml:"log_level"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Fees     FeesConfig     `toml:"fees"`
	Limits   LimitsConfig   `toml:"limits"`
	Lock     LockConfig     `toml:"lock"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// PostgresConfig selects the durable backend. An empty DSN runs the engine
// on in-memory stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig enables the market cache and the distributed lock. An empty
// URL disables both.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// S3Config enables ledger archiving. An empty bucket disables it.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeesConfig holds fee rates in basis points.
type FeesConfig struct {
	PlatformFeeBps  uint64 `toml:"platform_fee_bps"`
	EarlyExitFeeBps uint64 `toml:"early_exit_fee_bps"`
	MaxFeeBps       uint64 `toml:"max_fee_bps"`
}

// LimitsConfig holds stake limits as base-unit integers in decimal. "0"
// disables a limit.
type LimitsConfig struct {
	MaxBet                string `toml:"max_bet"`
	MaxOpenStakePerMarket string `toml:"max_open_stake_per_market"`
}

// LockConfig selects the per-market lock: "memory" or "redis".
type LockConfig struct {
	Backend string   `toml:"backend"`
	TTL     duration `toml:"ttl"`
}

// Lock backends.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// duration wraps time.Duration so TOML can hold strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs a single in-memory engine.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			MaxConns:      10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "ledgers",
			UseSSL: true,
		},
		Fees: FeesConfig{
			PlatformFeeBps:  300,
			EarlyExitFeeBps: 200,
			MaxFeeBps:       1000,
		},
		Limits: LimitsConfig{
			MaxBet:                "0",
			MaxOpenStakePerMarket: "0",
		},
		Lock: LockConfig{
			Backend: LockMemory,
			TTL:     duration{10 * time.Second},
		},
	}
}
