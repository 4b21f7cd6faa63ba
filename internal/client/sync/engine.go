// Package sync pulls remote conversation records into the local cache. A full
// sync bulk-loads up to a configured number of conversations; incremental
// syncs pull only what changed since the last watermark. Pagination stops
// conservatively (empty page, limit reached, or cutoff crossed) to bound both
// wall-clock time and remote load.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pocketchat/pocketchat/internal/client/cache"
	"github.com/pocketchat/pocketchat/internal/client/creds"
	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/locking"
	"github.com/pocketchat/pocketchat/internal/client/models"
	"github.com/pocketchat/pocketchat/internal/client/remote"
	"github.com/pocketchat/pocketchat/internal/client/settings"
	"github.com/pocketchat/pocketchat/internal/common"
	"github.com/pocketchat/pocketchat/internal/logging"
)

// API is the remote surface the engine consumes. *remote.Client satisfies it.
type API interface {
	ListChats(ctx context.Context, token string, page int) ([]remote.ChatSummary, error)
	GetChat(ctx context.Context, token, id string) (*remote.Chat, error)
	ChatURL(id string) string
}

// APIFactory builds an API client for a destination base URL.
type APIFactory func(baseURL string) API

// Result reports one sync pass.
type Result struct {
	Conversations int
	Messages      int
}

const (
	// incrementalLookback is the cutoff window used when no watermark exists.
	incrementalLookback = 7 * 24 * time.Hour

	// Bounded credential polling for background-triggered full syncs.
	credentialPollAttempts = 10
	credentialPollWait     = 500 * time.Millisecond

	defaultLockTimeout = 30 * time.Second
)

// Engine coordinates pulls for all destinations. Per-destination passes are
// serialized through the lock registry.
type Engine struct {
	store    kvstore.Store
	cache    *cache.Store
	creds    creds.Provider
	settings *settings.Repository
	locks    *locking.Registry
	apis     APIFactory
	logger   logging.Logger

	lockTimeout time.Duration
	now         func() time.Time
	sleep       func(time.Duration)
}

func NewEngine(store kvstore.Store, cacheStore *cache.Store, credsProvider creds.Provider,
	settingsRepo *settings.Repository, locks *locking.Registry, apis APIFactory, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		store:       store,
		cache:       cacheStore,
		creds:       credsProvider,
		settings:    settingsRepo,
		locks:       locks,
		apis:        apis,
		logger:      logger,
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// FullSync bulk-pulls up to the destination's conversation limit. It requires
// a credential (common.ErrNoCredential otherwise). The cursor is only marked
// done when at least one conversation was actually fetched, so an empty or
// failed first pass is retried as a full sync later.
func (e *Engine) FullSync(ctx context.Context, destinationURL string) (Result, error) {
	host := kvstore.HostOf(destinationURL)

	token, ok, err := e.creds.Token(ctx, host)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("full sync %s: %w", host, common.ErrNoCredential)
	}

	var result Result
	err = e.locks.WithLock(host, e.lockTimeout, func() error {
		st, err := e.settings.Get(ctx, host)
		if err != nil {
			return err
		}
		api := e.apis(destinationURL)

		summaries, err := e.collectAll(ctx, api, token, st)
		if err != nil {
			return err
		}

		fetched := 0
		result, fetched, err = e.fetchAndCache(ctx, api, token, host, st, summaries)
		if err != nil {
			return err
		}

		if fetched > 0 {
			if err := e.markSynced(ctx, host, e.now(), true); err != nil {
				return err
			}
		}
		e.logger.Info(ctx, "full sync finished", "host", host,
			"conversations", result.Conversations, "messages", result.Messages)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("full sync %s: %w", host, err)
	}
	return result, nil
}

// IncrementalSync pulls conversations updated after the last watermark
// (or the last 7 days when none exists). Listings are assumed sorted newest
// first: the first item at or before the cutoff halts pagination.
func (e *Engine) IncrementalSync(ctx context.Context, destinationURL string) (Result, error) {
	host := kvstore.HostOf(destinationURL)

	token, ok, err := e.creds.Token(ctx, host)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("incremental sync %s: %w", host, common.ErrNoCredential)
	}

	var result Result
	err = e.locks.WithLock(host, e.lockTimeout, func() error {
		st, err := e.settings.Get(ctx, host)
		if err != nil {
			return err
		}
		state, err := e.loadCursor(ctx, host)
		if err != nil {
			return err
		}

		cutoff := e.now().Add(-incrementalLookback)
		if state.LastSyncTime != nil {
			cutoff = *state.LastSyncTime
		}

		api := e.apis(destinationURL)
		summaries, err := e.collectNewerThan(ctx, api, token, st, cutoff)
		if err != nil {
			return err
		}

		fetched := 0
		result, fetched, err = e.fetchAndCache(ctx, api, token, host, st, summaries)
		if err != nil {
			return err
		}

		if fetched > 0 {
			if err := e.markSynced(ctx, host, e.now(), false); err != nil {
				return err
			}
		}
		e.logger.Info(ctx, "incremental sync finished", "host", host,
			"conversations", result.Conversations, "messages", result.Messages)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("incremental sync %s: %w", host, err)
	}
	return result, nil
}

// ManualSync is the user-action entry point. Without a credential it returns
// a nil result and no error. forceFullSync resets the cursor first; otherwise
// the pass is incremental when a full sync already completed.
func (e *Engine) ManualSync(ctx context.Context, destinationURL string, forceFullSync bool) (*Result, error) {
	host := kvstore.HostOf(destinationURL)

	_, ok, err := e.creds.Token(ctx, host)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if forceFullSync {
		if err := e.ForceSyncReset(ctx, destinationURL); err != nil {
			return nil, err
		}
		res, err := e.FullSync(ctx, destinationURL)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}

	done, err := e.IsFullSyncDone(ctx, destinationURL)
	if err != nil {
		return nil, err
	}

	var res Result
	if done {
		res, err = e.IncrementalSync(ctx, destinationURL)
	} else {
		res, err = e.FullSync(ctx, destinationURL)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// MaybeFullSync is the background trigger path (connectivity restored, app
// foregrounded, timer). It never returns an error: every internal failure
// degrades to a nil result. If a full sync is still pending it waits a
// bounded time for a credential to appear before attempting one.
func (e *Engine) MaybeFullSync(ctx context.Context, destinationURL string) *Result {
	host := kvstore.HostOf(destinationURL)

	done, err := e.IsFullSyncDone(ctx, destinationURL)
	if err != nil {
		e.logger.Warn(ctx, "sync skipped: cursor unreadable", "host", host, "error", err)
		return nil
	}

	if done {
		res, err := e.IncrementalSync(ctx, destinationURL)
		if err != nil {
			if !errors.Is(err, common.ErrNoCredential) {
				e.logger.Warn(ctx, "incremental sync failed", "host", host, "error", err)
			}
			return nil
		}
		return &res
	}

	st, err := e.settings.Get(ctx, host)
	if err != nil || !st.FullSyncEnabled {
		return nil
	}

	// Wait briefly for the credential: the trigger often fires right before
	// the external bridge finishes capturing a token.
	for attempt := 0; attempt < credentialPollAttempts; attempt++ {
		_, ok, err := e.creds.Token(ctx, host)
		if err != nil {
			e.logger.Warn(ctx, "credential lookup failed", "host", host, "error", err)
			return nil
		}
		if ok {
			res, err := e.FullSync(ctx, destinationURL)
			if err != nil {
				e.logger.Warn(ctx, "full sync failed", "host", host, "error", err)
				return nil
			}
			return &res
		}
		e.sleep(credentialPollWait)
	}
	return nil
}

// collectAll walks listing pages until an empty page or the conversation
// limit, truncating the final page exactly at the limit.
func (e *Engine) collectAll(ctx context.Context, api API, token string, st models.DestinationSettings) ([]remote.ChatSummary, error) {
	var collected []remote.ChatSummary
	delay := st.RequestDelay()

	for page := 1; ; page++ {
		chats, err := api.ListChats(ctx, token, page)
		if err != nil {
			return nil, err
		}
		if len(chats) == 0 {
			break
		}

		room := st.ConversationLimit - len(collected)
		if len(chats) >= room {
			collected = append(collected, chats[:room]...)
			break
		}
		collected = append(collected, chats...)

		if delay > 0 {
			e.sleep(delay)
		}
	}
	return collected, nil
}

// collectNewerThan walks listing pages newest-first and stops at the first
// item at or before the cutoff.
func (e *Engine) collectNewerThan(ctx context.Context, api API, token string, st models.DestinationSettings, cutoff time.Time) ([]remote.ChatSummary, error) {
	var collected []remote.ChatSummary
	delay := st.RequestDelay()

	for page := 1; ; page++ {
		chats, err := api.ListChats(ctx, token, page)
		if err != nil {
			return nil, err
		}
		if len(chats) == 0 {
			break
		}

		for _, chat := range chats {
			if !chat.LastActivity().After(cutoff) {
				return collected, nil
			}
			collected = append(collected, chat)
			if len(collected) >= st.ConversationLimit {
				return collected, nil
			}
		}

		if delay > 0 {
			e.sleep(delay)
		}
	}
	return collected, nil
}

// fetchAndCache pulls each collected conversation and writes it to the cache.
// Archived records are skipped (fetched but neither cached nor counted).
// Per-record fetch failures are logged and tolerated; the pass continues.
// The returned fetched count includes archived records and drives cursor
// updates; the Result counts only what was cached.
func (e *Engine) fetchAndCache(ctx context.Context, api API, token, host string,
	st models.DestinationSettings, summaries []remote.ChatSummary) (Result, int, error) {

	var result Result
	fetched := 0
	delay := st.RequestDelay()

	for i, summary := range summaries {
		if i > 0 && delay > 0 {
			e.sleep(delay)
		}

		chat, err := api.GetChat(ctx, token, summary.ID)
		if err != nil {
			if errors.Is(err, common.ErrUnauthorized) {
				return result, fetched, err
			}
			e.logger.Warn(ctx, "failed to fetch conversation", "host", host, "id", summary.ID, "error", err)
			continue
		}
		fetched++

		if chat.Archived {
			continue
		}

		rec := models.CachedRecord{
			SourceURL:  api.ChatURL(summary.ID),
			CapturedAt: e.now(),
			Title:      summary.Title,
			Payload:    chat.Raw,
		}
		if err := e.cache.CacheRecordWithID(ctx, host, summary.ID, rec); err != nil {
			e.logger.Warn(ctx, "failed to cache conversation", "host", host, "id", summary.ID, "error", err)
			continue
		}

		result.Conversations++
		result.Messages += chat.MessageCount()
	}
	return result, fetched, nil
}
