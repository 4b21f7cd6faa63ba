package models

import (
	"encoding/json"
	"time"
)

// CachedRecord is a locally stored copy of one remote conversation. It is
// created or overwritten by a successful fetch (or an externally supplied
// record) and read-only thereafter until evicted.
type CachedRecord struct {
	SourceURL  string          `json:"sourceUrl"`
	CapturedAt time.Time       `json:"capturedAt"`
	Title      string          `json:"title,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// CacheIndexEntry is the metadata ledger row for one CachedRecord. The sum of
// SizeBytes over all entries is the authoritative cache size.
type CacheIndexEntry struct {
	Key        string    `json:"key"`
	LastAccess time.Time `json:"lastAccess"`
	SizeBytes  int64     `json:"sizeBytes"`
	Title      string    `json:"title,omitempty"`
}
