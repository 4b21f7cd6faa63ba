// Package cache persists remote conversation records under a global byte
// budget. The index document is the authoritative ledger of what is cached
// and how large it is; least-recently-used records are evicted after every
// write that pushes the total over the budget.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/models"
	"github.com/pocketchat/pocketchat/internal/logging"
)

const (
	// DefaultBudgetBytes is the hard cap on the summed size of cached records.
	DefaultBudgetBytes = 50 << 20

	// evictTargetFraction is where an eviction pass stops, below the hard cap
	// so a single write near the limit does not trigger eviction every time.
	evictTargetFraction = 0.9
)

// Store is the bounded record cache.
type Store struct {
	store       kvstore.Store
	logger      logging.Logger
	budgetBytes int64

	now   func() time.Time
	newID func() string

	// evicting is a process-wide guard: eviction reasons about total size
	// across all destinations, so concurrent passes would double-delete.
	mu       sync.Mutex
	evicting bool
}

// NewStore returns a cache bound to the given persistence. A budget of <= 0
// selects DefaultBudgetBytes; a nil logger discards logs.
func NewStore(store kvstore.Store, budgetBytes int64, logger logging.Logger) *Store {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudgetBytes
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		store:       store,
		logger:      logger,
		budgetBytes: budgetBytes,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// CacheRecord persists a record whose id is not known to the caller (the
// browser-bridge path). The id is derived from the record itself; the chosen
// id is returned.
func (s *Store) CacheRecord(ctx context.Context, destination string, rec models.CachedRecord) (string, error) {
	id := s.recordID(rec)
	if err := s.CacheRecordWithID(ctx, destination, id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// CacheRecordWithID persists a record under (destination, id), updates the
// index entry, and runs an eviction pass.
func (s *Store) CacheRecordWithID(ctx context.Context, destination, id string, rec models.CachedRecord) error {
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = s.now()
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", destination, id, err)
	}
	if err := s.store.Set(ctx, kvstore.CacheRecordKey(destination, id), blob); err != nil {
		return fmt.Errorf("failed to persist record %s/%s: %w", destination, id, err)
	}

	index, err := s.loadIndex(ctx)
	if err != nil {
		return err
	}

	key := indexKey(destination, id)
	entry := models.CacheIndexEntry{
		Key:        key,
		LastAccess: s.now(),
		SizeBytes:  int64(len(blob)),
		Title:      rec.Title,
	}
	// A rewrite without a title keeps the one already on file.
	if entry.Title == "" {
		if prev, ok := index[key]; ok {
			entry.Title = prev.Title
		}
	}
	index[key] = entry

	if err := s.saveIndex(ctx, index); err != nil {
		return err
	}

	if err := s.evict(ctx); err != nil {
		s.logger.Warn(ctx, "cache eviction failed", "error", err)
	}
	return nil
}

// ReadRecord returns the record stored under (destination, id), if any.
func (s *Store) ReadRecord(ctx context.Context, destination, id string) (*models.CachedRecord, bool, error) {
	blob, ok, err := s.store.Get(ctx, kvstore.CacheRecordKey(destination, id))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %s/%s: %w", destination, id, err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec models.CachedRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode record %s/%s: %w", destination, id, err)
	}
	return &rec, true, nil
}

// Touch refreshes the index entry's last-access time, protecting the record
// from eviction. Touching an unknown record is a no-op.
func (s *Store) Touch(ctx context.Context, destination, id string) error {
	index, err := s.loadIndex(ctx)
	if err != nil {
		return err
	}
	key := indexKey(destination, id)
	entry, ok := index[key]
	if !ok {
		return nil
	}
	entry.LastAccess = s.now()
	index[key] = entry
	return s.saveIndex(ctx, index)
}

// ListIndex returns all index entries, most recently accessed first.
func (s *Store) ListIndex(ctx context.Context) ([]models.CacheIndexEntry, error) {
	index, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]models.CacheIndexEntry, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.After(entries[j].LastAccess)
	})
	return entries, nil
}

// RecalculateSize re-derives true stored sizes for every index entry, drops
// entries whose backing record no longer exists, and returns the corrected
// total. This is the self-healing path when the index and storage disagree,
// e.g. after a crash mid-write.
func (s *Store) RecalculateSize(ctx context.Context) (int64, error) {
	index, err := s.loadIndex(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	dropped := 0
	for key, entry := range index {
		blob, ok, err := s.store.Get(ctx, recordKeyFor(key))
		if err != nil {
			return 0, fmt.Errorf("failed to stat record %s: %w", key, err)
		}
		if !ok {
			delete(index, key)
			dropped++
			continue
		}
		entry.SizeBytes = int64(len(blob))
		index[key] = entry
		total += entry.SizeBytes
	}

	if err := s.saveIndex(ctx, index); err != nil {
		return 0, err
	}
	if dropped > 0 {
		s.logger.Info(ctx, "dropped orphaned cache index entries", "count", dropped)
	}
	return total, nil
}

// evict deletes least-recently-used records until the total is at or below
// budget × evictTargetFraction. A failed individual delete is skipped, never
// aborting the rest of the pass. Only one pass runs at a time.
func (s *Store) evict(ctx context.Context) error {
	s.mu.Lock()
	if s.evicting {
		s.mu.Unlock()
		return nil
	}
	s.evicting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.evicting = false
		s.mu.Unlock()
	}()

	index, err := s.loadIndex(ctx)
	if err != nil {
		return err
	}

	var total int64
	for _, e := range index {
		total += e.SizeBytes
	}
	if total <= s.budgetBytes {
		return nil
	}

	entries := make([]models.CacheIndexEntry, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	target := int64(float64(s.budgetBytes) * evictTargetFraction)
	evicted := 0
	for _, entry := range entries {
		if total <= target {
			break
		}
		if err := s.store.Delete(ctx, recordKeyFor(entry.Key)); err != nil {
			s.logger.Warn(ctx, "failed to evict cache record", "key", entry.Key, "error", err)
			continue
		}
		delete(index, entry.Key)
		total -= entry.SizeBytes
		evicted++
	}

	if err := s.saveIndex(ctx, index); err != nil {
		return err
	}
	s.logger.Info(ctx, "cache eviction pass finished",
		"evicted", evicted, "totalBytes", total, "budgetBytes", s.budgetBytes)
	return nil
}

func (s *Store) loadIndex(ctx context.Context) (map[string]models.CacheIndexEntry, error) {
	blob, ok, err := s.store.Get(ctx, kvstore.CacheIndexKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}
	index := make(map[string]models.CacheIndexEntry)
	if !ok {
		return index, nil
	}
	if err := json.Unmarshal(blob, &index); err != nil {
		return nil, fmt.Errorf("failed to decode cache index: %w", err)
	}
	return index, nil
}

func (s *Store) saveIndex(ctx context.Context, index map[string]models.CacheIndexEntry) error {
	blob, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	if err := s.store.Set(ctx, kvstore.CacheIndexKey(), blob); err != nil {
		return fmt.Errorf("failed to persist cache index: %w", err)
	}
	return nil
}

// indexKey is destination + record id, the unique key of an index entry.
func indexKey(destination, id string) string {
	return destination + ":" + id
}

// recordKeyFor maps an index key back to the record's storage key.
func recordKeyFor(key string) string {
	return "cache:record:" + key
}
