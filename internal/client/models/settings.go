package models

import "time"

// DestinationSettings is the per-destination sync configuration.
type DestinationSettings struct {
	ConversationLimit int     `json:"conversationLimit"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	FullSyncEnabled   bool    `json:"fullSyncEnabled"`
}

// DefaultDestinationSettings are applied when a destination has no stored
// settings document.
func DefaultDestinationSettings() DestinationSettings {
	return DestinationSettings{
		ConversationLimit: 50,
		RequestsPerSecond: 2,
		FullSyncEnabled:   true,
	}
}

// RequestDelay converts RequestsPerSecond into the cooperative pause inserted
// between consecutive remote calls: max(0, floor(1000/rps)) milliseconds.
func (s DestinationSettings) RequestDelay() time.Duration {
	if s.RequestsPerSecond <= 0 {
		return 0
	}
	ms := int64(1000 / s.RequestsPerSecond)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// SyncCursorState is the per-destination sync bookkeeping.
type SyncCursorState struct {
	FullSyncDoneAt *time.Time
	LastSyncTime   *time.Time
	SchemaVersion  int
}
