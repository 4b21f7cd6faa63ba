package models

import (
	"encoding/json"
	"fmt"
)

// PayloadKind discriminates the two request shapes a queued message can carry.
type PayloadKind string

const (
	// PayloadCompletion is a full completion request captured verbatim; it is
	// delivered byte-for-byte as the POST body.
	PayloadCompletion PayloadKind = "completion"

	// PayloadText is the minimal fallback form holding only the message text.
	PayloadText PayloadKind = "text"
)

// Payload is a tagged union of the two request shapes. Exactly one of
// Completion/Text is meaningful, selected by Kind.
type Payload struct {
	Kind       PayloadKind     `json:"kind"`
	Completion json.RawMessage `json:"completion,omitempty"`
	Text       string          `json:"text,omitempty"`
}

// NewCompletionPayload wraps a verbatim completion request body.
func NewCompletionPayload(body json.RawMessage) Payload {
	return Payload{Kind: PayloadCompletion, Completion: body}
}

// NewTextPayload wraps the minimal text fallback.
func NewTextPayload(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

// Body renders the HTTP request body for delivery. Completion payloads pass
// through untouched; text payloads are rendered as {"text": ...}.
func (p Payload) Body() ([]byte, error) {
	switch p.Kind {
	case PayloadCompletion:
		return p.Completion, nil
	case PayloadText:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{Text: p.Text})
	default:
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}
