package cache

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pocketchat/pocketchat/internal/client/models"
)

// DeriveRecordID extracts a record id from a source URL: the path segment
// immediately following a segment named conversation, conversations, chat,
// thread, or messages. This is best-effort; callers fall back to a random id
// when no segment matches.
func DeriveRecordID(sourceURL string) (string, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segs); i++ {
		switch strings.ToLower(segs[i]) {
		case "conversation", "conversations", "chat", "thread", "messages":
			if segs[i+1] != "" {
				return segs[i+1], true
			}
		}
	}
	return "", false
}

// recordID picks the id for a record: the server's canonical id from the
// payload wins, then the URL-derived id, then a random fallback.
func (s *Store) recordID(rec models.CachedRecord) string {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Payload, &payload); err == nil && payload.ID != "" {
		return payload.ID
	}
	if id, ok := DeriveRecordID(rec.SourceURL); ok {
		return id
	}
	return s.newID()
}
