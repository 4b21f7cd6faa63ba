// Package remote implements the HTTP/JSON client for the conversational
// service: paginated chat listings, per-chat detail, and completion delivery.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pocketchat/pocketchat/internal/common"
)

const errorBodyLimit = 4 << 10

// Client talks to one destination's API. The credential is passed per call
// because it can appear, rotate, or expire between calls.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the destination rooted at baseURL
// (e.g. "https://chat.example.com").
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the normalized destination root.
func (c *Client) BaseURL() string { return c.baseURL }

// ChatURL returns the canonical page URL for a conversation, used as the
// cached record's source URL.
func (c *Client) ChatURL(id string) string {
	return c.baseURL + "/c/" + id
}

// ListChats fetches one page of the conversation listing. An empty slice
// signals the end of pagination.
func (c *Client) ListChats(ctx context.Context, token string, page int) ([]ChatSummary, error) {
	url := c.baseURL + "/api/v1/chats/?page=" + strconv.Itoa(page)
	body, err := c.do(ctx, http.MethodGet, url, token, nil)
	if err != nil {
		return nil, err
	}

	var chats []ChatSummary
	if err := json.Unmarshal(body, &chats); err != nil {
		return nil, fmt.Errorf("failed to decode chat listing: %w", err)
	}
	return chats, nil
}

// GetChat fetches the full record for one conversation. The verbatim response
// body is preserved in Chat.Raw.
func (c *Client) GetChat(ctx context.Context, token, id string) (*Chat, error) {
	url := c.baseURL + "/api/v1/chats/" + id
	body, err := c.do(ctx, http.MethodGet, url, token, nil)
	if err != nil {
		return nil, err
	}

	chat := &Chat{}
	if err := json.Unmarshal(body, chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", id, err)
	}
	chat.Raw = body
	return chat, nil
}

// SendCompletion delivers one queued message body. The body is posted
// byte-for-byte; the response payload is discarded.
func (c *Client) SendCompletion(ctx context.Context, token string, body []byte) error {
	url := c.baseURL + "/api/chat/completions"
	_, err := c.do(ctx, http.MethodPost, url, token, body)
	return err
}

func (c *Client) do(ctx context.Context, method, url, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%s %s: %w", method, url, common.ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("%s %s: unexpected status %s: %s",
			method, url, resp.Status, strings.TrimSpace(string(b)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return b, nil
}
