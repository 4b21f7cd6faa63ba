// Package models defines the persisted data types shared by the outbox,
// cache, and sync components.
package models

import "time"

// QueueItem is one outbound message awaiting delivery. Items are stored per
// destination in FIFO order; Attempts only increases; an item is removed
// exactly once (on success, on expiry, or on exceeding max attempts).
type QueueItem struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Payload        Payload   `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
}
