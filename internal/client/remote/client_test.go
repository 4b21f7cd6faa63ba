package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketchat/pocketchat/internal/common"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestListChats_SendsBearerAndPage(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"id":"c1","title":"First","updated_at":100},{"id":"c2"}]`))
	})

	chats, err := c.ListChats(context.Background(), "tok-123", 3)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/api/v1/chats/", gotPath)
	assert.Equal(t, "page=3", gotQuery)
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "First", chats[0].Title)
}

func TestListChats_EmptyPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	chats, err := c.ListChats(context.Background(), "tok", 1)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestGetChat_PreservesRawBody(t *testing.T) {
	raw := `{"id":"c1","title":"T","archived":false,"chat":{"messages":[{"role":"user"},{"role":"assistant"}]},"extra":"kept"}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chats/c1", r.URL.Path)
		_, _ = w.Write([]byte(raw))
	})

	chat, err := c.GetChat(context.Background(), "tok", "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", chat.ID)
	assert.Equal(t, 2, chat.MessageCount())
	assert.Equal(t, raw, string(chat.Raw))
}

func TestSendCompletion_PostsBodyVerbatim(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/completions", r.URL.Path)
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	body := []byte(`{"model":"m","messages":[]}`)
	require.NoError(t, c.SendCompletion(context.Background(), "tok", body))

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, body, gotBody)
}

func TestDo_401MapsToUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := c.SendCompletion(context.Background(), "stale", []byte(`{}`))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestDo_ServerErrorIncludesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.ListChats(context.Background(), "tok", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUnauthorized)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestChatSummary_LastActivity(t *testing.T) {
	s := ChatSummary{UpdatedAt: 100, CreatedAt: 200}
	assert.Equal(t, time.Unix(200, 0), s.LastActivity())

	s = ChatSummary{UpdatedAt: 300, CreatedAt: 200}
	assert.Equal(t, time.Unix(300, 0), s.LastActivity())
}

func TestChatURL(t *testing.T) {
	c := NewClient("https://chat.example.com/", time.Second)
	assert.Equal(t, "https://chat.example.com/c/abc", c.ChatURL("abc"))
}
