package remote

import (
	"encoding/json"
	"time"
)

// ChatSummary is one row of the paginated conversation listing.
// Timestamps are unix seconds; either may be zero.
type ChatSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// LastActivity is max(updated_at, created_at) as a time. The listing is
// assumed sorted by this value, newest first.
func (s ChatSummary) LastActivity() time.Time {
	ts := s.UpdatedAt
	if s.CreatedAt > ts {
		ts = s.CreatedAt
	}
	return time.Unix(ts, 0)
}

// Chat is the full per-conversation record. Raw holds the verbatim response
// body and is what gets cached; the typed fields only drive filtering and
// counting.
type Chat struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Archived bool              `json:"archived,omitempty"`
	Chat     *ChatBody         `json:"chat,omitempty"`
	Messages []json.RawMessage `json:"messages,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type ChatBody struct {
	Messages []json.RawMessage `json:"messages"`
}

// MessageCount counts messages wherever the server put them (nested chat
// object or top level).
func (c *Chat) MessageCount() int {
	if c.Chat != nil && len(c.Chat.Messages) > 0 {
		return len(c.Chat.Messages)
	}
	return len(c.Messages)
}
