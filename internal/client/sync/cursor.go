package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/models"
)

// SchemaVersion marks the on-disk layout of synced data. A stored marker that
// does not match is treated as "full sync not done", forcing a fresh pull.
const SchemaVersion = 1

func (e *Engine) loadCursor(ctx context.Context, host string) (models.SyncCursorState, error) {
	var state models.SyncCursorState

	done, err := e.readTime(ctx, kvstore.SyncDoneKey(host))
	if err != nil {
		return state, err
	}
	last, err := e.readTime(ctx, kvstore.SyncLastTimeKey(host))
	if err != nil {
		return state, err
	}

	state.FullSyncDoneAt = done
	state.LastSyncTime = last

	blob, ok, err := e.store.Get(ctx, kvstore.SyncVersionKey(host))
	if err != nil {
		return state, fmt.Errorf("failed to read sync version for %s: %w", host, err)
	}
	if ok {
		if v, err := strconv.Atoi(string(blob)); err == nil {
			state.SchemaVersion = v
		}
	}
	return state, nil
}

func (e *Engine) readTime(ctx context.Context, key string) (*time.Time, error) {
	blob, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(blob))
	if err != nil {
		return nil, nil // unreadable watermark is the same as none
	}
	return &t, nil
}

// markSynced persists the cursor after a productive pass. fullDone also sets
// the full-sync-done marker and the schema version.
func (e *Engine) markSynced(ctx context.Context, host string, at time.Time, fullDone bool) error {
	stamp := []byte(at.UTC().Format(time.RFC3339Nano))
	if fullDone {
		if err := e.store.Set(ctx, kvstore.SyncDoneKey(host), stamp); err != nil {
			return err
		}
		if err := e.store.Set(ctx, kvstore.SyncVersionKey(host), []byte(strconv.Itoa(SchemaVersion))); err != nil {
			return err
		}
	}
	return e.store.Set(ctx, kvstore.SyncLastTimeKey(host), stamp)
}

// IsFullSyncDone reports whether an initial full sync completed for the
// destination under the current schema version.
func (e *Engine) IsFullSyncDone(ctx context.Context, destinationURL string) (bool, error) {
	host := kvstore.HostOf(destinationURL)
	state, err := e.loadCursor(ctx, host)
	if err != nil {
		return false, err
	}
	return state.FullSyncDoneAt != nil && state.SchemaVersion == SchemaVersion, nil
}

// ForceSyncReset clears the destination's cursor state so the next sync
// starts from scratch.
func (e *Engine) ForceSyncReset(ctx context.Context, destinationURL string) error {
	host := kvstore.HostOf(destinationURL)
	for _, key := range []string{
		kvstore.SyncDoneKey(host),
		kvstore.SyncLastTimeKey(host),
		kvstore.SyncVersionKey(host),
	} {
		if err := e.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset cursor for %s: %w", host, err)
		}
	}
	return nil
}
