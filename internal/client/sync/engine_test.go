package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketchat/pocketchat/internal/client/cache"
	"github.com/pocketchat/pocketchat/internal/client/creds"
	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/locking"
	"github.com/pocketchat/pocketchat/internal/client/models"
	"github.com/pocketchat/pocketchat/internal/client/remote"
	"github.com/pocketchat/pocketchat/internal/client/settings"
	"github.com/pocketchat/pocketchat/internal/common"
)

const (
	testURL  = "https://chat.example.com"
	testHost = "chat.example.com"
)

// fakeAPI serves scripted listing pages and chat records, and counts calls.
type fakeAPI struct {
	pages     [][]remote.ChatSummary
	chats     map[string]*remote.Chat
	chatErrs  map[string]error
	listCalls int
	getCalls  []string
}

func (f *fakeAPI) ListChats(ctx context.Context, token string, page int) ([]remote.ChatSummary, error) {
	f.listCalls++
	if page-1 < len(f.pages) {
		return f.pages[page-1], nil
	}
	return nil, nil
}

func (f *fakeAPI) GetChat(ctx context.Context, token, id string) (*remote.Chat, error) {
	f.getCalls = append(f.getCalls, id)
	if err, ok := f.chatErrs[id]; ok {
		return nil, err
	}
	chat, ok := f.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, common.ErrNotFound)
	}
	return chat, nil
}

func (f *fakeAPI) ChatURL(id string) string { return testURL + "/c/" + id }

func chatRecord(id string, archived bool, messages int) *remote.Chat {
	msgs := make([]json.RawMessage, messages)
	for i := range msgs {
		msgs[i] = json.RawMessage(`{"role":"user","content":"m"}`)
	}
	chat := &remote.Chat{
		ID:       id,
		Title:    "chat " + id,
		Archived: archived,
		Chat:     &remote.ChatBody{Messages: msgs},
	}
	raw, _ := json.Marshal(chat)
	chat.Raw = raw
	return chat
}

func summaries(ids ...string) []remote.ChatSummary {
	out := make([]remote.ChatSummary, len(ids))
	for i, id := range ids {
		out[i] = remote.ChatSummary{ID: id, Title: "chat " + id, UpdatedAt: 1000}
	}
	return out
}

type fixture struct {
	engine *Engine
	store  *kvstore.MemoryStore
	cache  *cache.Store
	creds  *creds.StoreProvider
	api    *fakeAPI
	slept  []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: kvstore.NewMemoryStore(),
		api:   &fakeAPI{chats: map[string]*remote.Chat{}, chatErrs: map[string]error{}},
	}
	f.creds = creds.NewStoreProvider(f.store)
	f.cache = cache.NewStore(f.store, 0, nil)
	f.engine = NewEngine(f.store, f.cache, f.creds, settings.NewRepository(f.store),
		locking.NewRegistry(), func(string) API { return f.api }, nil)
	f.engine.sleep = func(d time.Duration) { f.slept = append(f.slept, d) }
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.creds.SetToken(context.Background(), testHost, "tok"))
}

func (f *fixture) setLimit(t *testing.T, limit int) {
	t.Helper()
	s := models.DefaultDestinationSettings()
	s.ConversationLimit = limit
	require.NoError(t, settings.NewRepository(f.store).Set(context.Background(), testHost, s))
}

func (f *fixture) addChats(ids ...string) {
	for _, id := range ids {
		f.api.chats[id] = chatRecord(id, false, 2)
	}
}

func TestFullSync_RequiresCredential(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.FullSync(context.Background(), testURL)
	require.ErrorIs(t, err, common.ErrNoCredential)
}

func TestFullSync_FetchesAndCachesAllPages(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.api.pages = [][]remote.ChatSummary{summaries("a", "b"), summaries("c")}
	f.addChats("a", "b", "c")

	res, err := f.engine.FullSync(ctx, testURL)
	require.NoError(t, err)
	assert.Equal(t, Result{Conversations: 3, Messages: 6}, res)

	for _, id := range []string{"a", "b", "c"} {
		rec, ok, err := f.cache.ReadRecord(ctx, testHost, id)
		require.NoError(t, err)
		require.True(t, ok, "chat %s must be cached", id)
		assert.Equal(t, "chat "+id, rec.Title)
		assert.Equal(t, testURL+"/c/"+id, rec.SourceURL)
	}

	done, err := f.engine.IsFullSyncDone(ctx, testURL)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestFullSync_TruncatesExactlyAtLimit(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.setLimit(t, 5)

	f.api.pages = [][]remote.ChatSummary{
		summaries("a", "b", "c"),
		summaries("d", "e", "f"),
		summaries("g", "h", "i"),
	}
	f.addChats("a", "b", "c", "d", "e", "f")

	res, err := f.engine.FullSync(context.Background(), testURL)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Conversations, "the final page's contribution is cut at the limit")
	assert.Equal(t, 2, f.api.listCalls, "a third page must never be requested")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, f.api.getCalls)
}

func TestFullSync_SkipsArchivedConversations(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.api.pages = [][]remote.ChatSummary{summaries("live", "dead")}
	f.api.chats["live"] = chatRecord("live", false, 3)
	f.api.chats["dead"] = chatRecord("dead", true, 9)

	res, err := f.engine.FullSync(ctx, testURL)
	require.NoError(t, err)
	assert.Equal(t, Result{Conversations: 1, Messages: 3}, res)

	_, ok, err := f.cache.ReadRecord(ctx, testHost, "dead")
	require.NoError(t, err)
	assert.False(t, ok, "archived conversations are not cached")
}

func TestFullSync_ZeroFetchedLeavesCursorUntouched(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.api.pages = nil // empty first page

	res, err := f.engine.FullSync(ctx, testURL)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	done, err := f.engine.IsFullSyncDone(ctx, testURL)
	require.NoError(t, err)
	assert.False(t, done, "an empty pull must not be marked done")
}

func TestFullSync_ToleratesPerRecordFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.pages = [][]remote.ChatSummary{summaries("ok1", "broken", "ok2")}
	f.addChats("ok1", "ok2")
	f.api.chatErrs["broken"] = errors.New("boom")

	res, err := f.engine.FullSync(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Conversations)
	assert.Equal(t, []string{"ok1", "broken", "ok2"}, f.api.getCalls, "the pass continues past a failed record")
}

func TestIncrementalSync_StopsAtCutoff(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	watermark := time.Now().Add(-time.Hour)
	require.NoError(t, f.engine.markSynced(ctx, testHost, watermark, true))

	newer := remote.ChatSummary{ID: "new", Title: "chat new", UpdatedAt: watermark.Add(10 * time.Second).Unix()}
	older := remote.ChatSummary{ID: "old", Title: "chat old", UpdatedAt: watermark.Add(-10 * time.Second).Unix()}
	f.api.pages = [][]remote.ChatSummary{{newer, older}, summaries("never")}
	f.addChats("new", "old", "never")

	res, err := f.engine.IncrementalSync(ctx, testURL)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Conversations, "only the item newer than the cutoff is synced")
	assert.Equal(t, []string{"new"}, f.api.getCalls)
	assert.Equal(t, 1, f.api.listCalls, "pagination halts at the first at-or-before-cutoff item")
}

func TestIncrementalSync_UsesLookbackWithoutWatermark(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	recent := remote.ChatSummary{ID: "recent", UpdatedAt: time.Now().Add(-time.Hour).Unix()}
	ancient := remote.ChatSummary{ID: "ancient", UpdatedAt: time.Now().Add(-30 * 24 * time.Hour).Unix()}
	f.api.pages = [][]remote.ChatSummary{{recent, ancient}}
	f.addChats("recent", "ancient")

	res, err := f.engine.IncrementalSync(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, f.api.getCalls)
	assert.Equal(t, 1, res.Conversations)
}

func TestManualSync_NoCredentialReturnsNil(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.ManualSync(context.Background(), testURL, false)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, f.api.listCalls)
}

func TestManualSync_RunsFullSyncFirstThenIncremental(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.api.pages = [][]remote.ChatSummary{summaries("a")}
	f.addChats("a")

	res, err := f.engine.ManualSync(ctx, testURL, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Conversations)

	// Second manual sync goes incremental: everything is at or before the
	// watermark now, so nothing new is pulled.
	f.api.getCalls = nil
	res, err = f.engine.ManualSync(ctx, testURL, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Conversations)
	assert.Empty(t, f.api.getCalls)
}

func TestManualSync_ForceResetsAndRunsFull(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.api.pages = [][]remote.ChatSummary{summaries("a")}
	f.addChats("a")

	_, err := f.engine.FullSync(ctx, testURL)
	require.NoError(t, err)

	f.api.getCalls = nil
	res, err := f.engine.ManualSync(ctx, testURL, true)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Conversations, "force re-pulls everything")
	assert.Equal(t, []string{"a"}, f.api.getCalls)
}

func TestMaybeFullSync_PollsForCredentialThenGivesUp(t *testing.T) {
	f := newFixture(t)

	res := f.engine.MaybeFullSync(context.Background(), testURL)
	assert.Nil(t, res)
	assert.Len(t, f.slept, credentialPollAttempts, "bounded polling, then none")
	assert.Zero(t, f.api.listCalls)
}

func TestMaybeFullSync_RunsFullSyncOnceCredentialAppears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.pages = [][]remote.ChatSummary{summaries("a")}
	f.addChats("a")

	polls := 0
	f.engine.sleep = func(time.Duration) {
		polls++
		if polls == 2 {
			require.NoError(t, f.creds.SetToken(ctx, testHost, "tok"))
		}
	}

	res := f.engine.MaybeFullSync(ctx, testURL)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Conversations)
}

func TestMaybeFullSync_NeverReturnsErrors(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// Full sync pending, credential present, but the first listing fails.
	f.api.pages = nil
	f.api.chatErrs["x"] = errors.New("unused")
	brokenAPI := &fakeAPI{chats: map[string]*remote.Chat{}}
	f.engine.apis = func(string) API { return &listFailAPI{inner: brokenAPI} }

	res := f.engine.MaybeFullSync(context.Background(), testURL)
	assert.Nil(t, res)
}

func TestMaybeFullSync_RespectsFullSyncDisabled(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	s := models.DefaultDestinationSettings()
	s.FullSyncEnabled = false
	require.NoError(t, settings.NewRepository(f.store).Set(context.Background(), testHost, s))

	res := f.engine.MaybeFullSync(context.Background(), testURL)
	assert.Nil(t, res)
	assert.Zero(t, f.api.listCalls)
}

func TestMaybeFullSync_IncrementalAfterFullDone(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.api.pages = [][]remote.ChatSummary{summaries("a")}
	f.addChats("a")

	_, err := f.engine.FullSync(ctx, testURL)
	require.NoError(t, err)

	f.api.listCalls = 0
	res := f.engine.MaybeFullSync(ctx, testURL)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Conversations, "nothing newer than the watermark")
	assert.Equal(t, 1, f.api.listCalls)
}

func TestForceSyncReset_ClearsCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.markSynced(ctx, testHost, time.Now(), true))

	done, err := f.engine.IsFullSyncDone(ctx, testURL)
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, f.engine.ForceSyncReset(ctx, testURL))

	done, err = f.engine.IsFullSyncDone(ctx, testURL)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestFullSync_SleepsBetweenRequests(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.api.pages = [][]remote.ChatSummary{summaries("a", "b")}
	f.addChats("a", "b")

	_, err := f.engine.FullSync(context.Background(), testURL)
	require.NoError(t, err)

	// Default settings are 2 req/s: one pause after the first listing page
	// and one between the two record fetches.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, f.slept)
}

// listFailAPI fails every listing call.
type listFailAPI struct {
	inner *fakeAPI
}

func (a *listFailAPI) ListChats(ctx context.Context, token string, page int) ([]remote.ChatSummary, error) {
	return nil, errors.New("listing unavailable")
}

func (a *listFailAPI) GetChat(ctx context.Context, token, id string) (*remote.Chat, error) {
	return a.inner.GetChat(ctx, token, id)
}

func (a *listFailAPI) ChatURL(id string) string { return a.inner.ChatURL(id) }
