// Package kvstore provides the namespaced key-value store every other client
// component persists through. The canonical implementation is backed by a
// local SQLite database; an in-memory implementation exists for tests and
// embedding.
package kvstore

import "context"

// Store is a flat, namespaced key-value store.
//
// Get reports a missing key as (nil, false, nil) rather than an error, so
// callers can treat absence as a first-class state.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// List returns all pairs whose key starts with prefix. An empty prefix
	// returns everything.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
}
