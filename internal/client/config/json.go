package config

import (
	"encoding/json"
	"os"

	"github.com/pocketchat/pocketchat/internal/flagx"
	"github.com/pocketchat/pocketchat/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds.
type JsonConfig struct {
	DatabasePath     string         `json:"database_path"`
	CacheBudgetBytes int64          `json:"cache_budget_bytes"`
	QueueTTL         timex.Duration `json:"queue_ttl"`
	MaxAttempts      int            `json:"max_attempts"`
	MaxQueueLength   int            `json:"max_queue_length"`
	LockTimeout      timex.Duration `json:"lock_timeout"`
	HTTPTimeout      timex.Duration `json:"http_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when neither is given, nothing is
// loaded. Fields absent from the file keep their current values. Panics on
// read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.CacheBudgetBytes > 0 {
		cfg.CacheBudgetBytes = jc.CacheBudgetBytes
	}
	if jc.QueueTTL.Duration > 0 {
		cfg.QueueTTL = jc.QueueTTL.Duration
	}
	if jc.MaxAttempts > 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	if jc.MaxQueueLength > 0 {
		cfg.MaxQueueLength = jc.MaxQueueLength
	}
	if jc.LockTimeout.Duration > 0 {
		cfg.LockTimeout = jc.LockTimeout.Duration
	}
	if jc.HTTPTimeout.Duration > 0 {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
}
