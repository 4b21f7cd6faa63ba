package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig is a DTO for environment parsing. Zero values mean "not set" and
// leave the corresponding Config field untouched.
type envConfig struct {
	DatabasePath     string        `env:"POCKETCHAT_DB_PATH"`
	CacheBudgetBytes int64         `env:"POCKETCHAT_CACHE_BUDGET_BYTES"`
	QueueTTL         time.Duration `env:"POCKETCHAT_QUEUE_TTL"`
	MaxAttempts      int           `env:"POCKETCHAT_MAX_ATTEMPTS"`
	MaxQueueLength   int           `env:"POCKETCHAT_MAX_QUEUE_LENGTH"`
	LockTimeout      time.Duration `env:"POCKETCHAT_LOCK_TIMEOUT"`
	HTTPTimeout      time.Duration `env:"POCKETCHAT_HTTP_TIMEOUT"`
}

// parseEnv overlays Config with values from the environment. A .env file in
// the working directory is loaded first if present; a missing file is fine.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		panic(err)
	}

	if ec.DatabasePath != "" {
		cfg.DatabasePath = ec.DatabasePath
	}
	if ec.CacheBudgetBytes > 0 {
		cfg.CacheBudgetBytes = ec.CacheBudgetBytes
	}
	if ec.QueueTTL > 0 {
		cfg.QueueTTL = ec.QueueTTL
	}
	if ec.MaxAttempts > 0 {
		cfg.MaxAttempts = ec.MaxAttempts
	}
	if ec.MaxQueueLength > 0 {
		cfg.MaxQueueLength = ec.MaxQueueLength
	}
	if ec.LockTimeout > 0 {
		cfg.LockTimeout = ec.LockTimeout
	}
	if ec.HTTPTimeout > 0 {
		cfg.HTTPTimeout = ec.HTTPTimeout
	}
}
