package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path on top of Defaults, then applies
// ENGINE_* environment overrides. An empty path or a missing file leaves
// the defaults in place. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "ENGINE_LOG_LEVEL")

	setInt(&cfg.Server.Port, "ENGINE_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-provided port
	setDuration(&cfg.Server.RequestTimeout, "ENGINE_SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "ENGINE_SERVER_SHUTDOWN_TIMEOUT")

	setStr(&cfg.Postgres.DSN, "ENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt(&cfg.Postgres.MaxConns, "ENGINE_POSTGRES_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ENGINE_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.URL, "ENGINE_REDIS_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "ENGINE_REDIS_CACHE_TTL")

	setStr(&cfg.S3.Endpoint, "ENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ENGINE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ENGINE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ENGINE_S3_FORCE_PATH_STYLE")

	setUint64(&cfg.Fees.PlatformFeeBps, "ENGINE_FEES_PLATFORM_FEE_BPS")
	setUint64(&cfg.Fees.EarlyExitFeeBps, "ENGINE_FEES_EARLY_EXIT_FEE_BPS")
	setUint64(&cfg.Fees.MaxFeeBps, "ENGINE_FEES_MAX_FEE_BPS")

	setStr(&cfg.Limits.MaxBet, "ENGINE_LIMITS_MAX_BET")
	setStr(&cfg.Limits.MaxOpenStakePerMarket, "ENGINE_LIMITS_MAX_OPEN_STAKE_PER_MARKET")

	setStr(&cfg.Lock.Backend, "ENGINE_LOCK_BACKEND")
	setDuration(&cfg.Lock.TTL, "ENGINE_LOCK_TTL")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
