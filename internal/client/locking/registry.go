// Package locking provides per-key mutual exclusion with acquisition
// timeouts. Every multi-step operation against a destination's mutable state
// (outbox drain, sync pass) runs under the destination's lock.
package locking

import (
	"fmt"
	"sync"
	"time"

	"github.com/pocketchat/pocketchat/internal/common"
)

// Registry owns one exclusive lock per opaque string key (typically the
// destination host). Locks are not re-entrant.
type Registry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]chan struct{})}
}

// lockChan returns the semaphore channel for key, creating it on first use.
// A buffered channel of capacity one acts as the mutex; blocked senders are
// served in arrival order.
func (r *Registry) lockChan(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[key] = ch
	}
	return ch
}

// Acquire blocks until the lock for key is available or timeout elapses. On
// success it returns a release function that is safe to call more than once.
// On timeout it returns common.ErrLockTimeout and the key is left unlocked
// for other waiters.
func (r *Registry) Acquire(key string, timeout time.Duration) (func(), error) {
	ch := r.lockChan(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() { <-ch })
		}
		return release, nil
	case <-timer.C:
		return nil, fmt.Errorf("lock %q: %w", key, common.ErrLockTimeout)
	}
}

// WithLock acquires the lock for key, runs fn, and releases the lock even if
// fn returns an error or panics.
func (r *Registry) WithLock(key string, timeout time.Duration, fn func() error) error {
	release, err := r.Acquire(key, timeout)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
