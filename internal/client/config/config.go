// Package config assembles the client's runtime settings. Sources are
// layered: built-in defaults, then environment (with optional .env file),
// then a JSON config file, then command-line flags. Later sources win.
package config

import "time"

// Config holds runtime settings for the pocketchat client.
type Config struct {
	// DatabasePath is the SQLite file backing the local key-value store.
	DatabasePath string

	// CacheBudgetBytes caps the summed size of cached conversation records.
	CacheBudgetBytes int64

	// Outbox bounds.
	QueueTTL       time.Duration
	MaxAttempts    int
	MaxQueueLength int

	// LockTimeout bounds how long an operation waits for a destination lock.
	LockTimeout time.Duration

	// HTTPTimeout applies to every remote request.
	HTTPTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "pocketchat.db"
	c.CacheBudgetBytes = 50 << 20
	c.QueueTTL = 7 * 24 * time.Hour
	c.MaxAttempts = 10
	c.MaxQueueLength = 100
	c.LockTimeout = 30 * time.Second
	c.HTTPTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, a JSON file (if present), and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
