// Package outbox implements the durable send queue: messages authored while
// offline (or without a credential) are persisted per destination in FIFO
// order and drained later with rate limiting, retry accounting, and TTL and
// size based garbage collection.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pocketchat/pocketchat/internal/client/creds"
	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/locking"
	"github.com/pocketchat/pocketchat/internal/client/models"
	"github.com/pocketchat/pocketchat/internal/client/settings"
	"github.com/pocketchat/pocketchat/internal/common"
	"github.com/pocketchat/pocketchat/internal/logging"
)

// Sender delivers one message body to a destination. *remote.Client satisfies
// this for a given base URL.
type Sender interface {
	SendCompletion(ctx context.Context, token string, body []byte) error
}

// SenderFactory builds a Sender for a destination base URL.
type SenderFactory func(baseURL string) Sender

// Config bounds the queue. Zero values select the defaults.
type Config struct {
	TTL         time.Duration // items older than this are dropped
	MaxAttempts int           // items retried this many times are dropped
	MaxItems    int           // hard cap on queue length per destination
	LockTimeout time.Duration
}

// DefaultConfig returns the standard queue bounds: 7-day TTL, 10 attempts,
// 100 items.
func DefaultConfig() Config {
	return Config{
		TTL:         7 * 24 * time.Hour,
		MaxAttempts: 10,
		MaxItems:    100,
		LockTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = d.LockTimeout
	}
	return c
}

// DrainResult reports one drain pass: how many items were delivered and how
// many remain queued.
type DrainResult struct {
	Sent      int
	Remaining int
}

// Outbox is the durable per-destination send queue.
type Outbox struct {
	cfg      Config
	store    kvstore.Store
	locks    *locking.Registry
	creds    creds.Provider
	settings *settings.Repository
	senders  SenderFactory
	logger   logging.Logger

	now   func() time.Time
	sleep func(time.Duration)
	newID func() string
}

func New(cfg Config, store kvstore.Store, locks *locking.Registry, credsProvider creds.Provider,
	settingsRepo *settings.Repository, senders SenderFactory, logger logging.Logger) *Outbox {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Outbox{
		cfg:      cfg.withDefaults(),
		store:    store,
		locks:    locks,
		creds:    credsProvider,
		settings: settingsRepo,
		senders:  senders,
		logger:   logger,
		now:      time.Now,
		sleep:    time.Sleep,
		newID:    uuid.NewString,
	}
}

// Enqueue appends item to the destination's queue and runs a cleanup pass.
// The item's ID is assigned if empty; CreatedAt and Attempts are always
// stamped here. Storage errors propagate.
func (o *Outbox) Enqueue(ctx context.Context, destination string, item models.QueueItem) error {
	return o.locks.WithLock(destination, o.cfg.LockTimeout, func() error {
		queue, err := o.loadQueue(ctx, destination)
		if err != nil {
			return err
		}

		if item.ID == "" {
			item.ID = o.newID()
		}
		item.CreatedAt = o.now()
		item.Attempts = 0
		item.LastError = ""
		queue = append(queue, item)

		queue = o.cleanup(ctx, destination, queue)
		return o.saveQueue(ctx, destination, queue)
	})
}

// List returns a snapshot of the destination's queue, oldest first.
func (o *Outbox) List(ctx context.Context, destination string) ([]models.QueueItem, error) {
	var snapshot []models.QueueItem
	err := o.locks.WithLock(destination, o.cfg.LockTimeout, func() error {
		queue, err := o.loadQueue(ctx, destination)
		if err != nil {
			return err
		}
		snapshot = queue
		return nil
	})
	return snapshot, err
}

// RemoveItems removes the items with the given ids from the destination's
// queue. Unknown ids are ignored.
func (o *Outbox) RemoveItems(ctx context.Context, destination string, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return o.locks.WithLock(destination, o.cfg.LockTimeout, func() error {
		queue, err := o.loadQueue(ctx, destination)
		if err != nil {
			return err
		}
		kept := queue[:0]
		for _, item := range queue {
			if _, ok := drop[item.ID]; !ok {
				kept = append(kept, item)
			}
		}
		return o.saveQueue(ctx, destination, kept)
	})
}

// Count returns the destination's current queue length.
func (o *Outbox) Count(ctx context.Context, destination string) (int, error) {
	n := 0
	err := o.locks.WithLock(destination, o.cfg.LockTimeout, func() error {
		queue, err := o.loadQueue(ctx, destination)
		if err != nil {
			return err
		}
		n = len(queue)
		return nil
	})
	return n, err
}

// Drain attempts to deliver the destination's queued items in order.
//
// A missing credential is not an error: the pass reports zero sent and the
// current queue length. An unauthorized response halts the whole pass (the
// credential is presumed stale). Any other send failure bumps the item's
// attempt counter, records the error, and stops the pass with the item still
// at the head; later items are never sent ahead of a stuck one.
func (o *Outbox) Drain(ctx context.Context, destinationURL string) (DrainResult, error) {
	host := kvstore.HostOf(destinationURL)
	var result DrainResult

	err := o.locks.WithLock(host, o.cfg.LockTimeout, func() error {
		queue, err := o.loadQueue(ctx, host)
		if err != nil {
			return err
		}

		queue = o.cleanup(ctx, host, queue)
		if err := o.saveQueue(ctx, host, queue); err != nil {
			return err
		}

		token, ok, err := o.creds.Token(ctx, host)
		if err != nil {
			return err
		}
		if !ok {
			result = DrainResult{Sent: 0, Remaining: len(queue)}
			o.logger.Debug(ctx, "drain deferred: no credential", "host", host, "queued", len(queue))
			return nil
		}

		st, err := o.settings.Get(ctx, host)
		if err != nil {
			return err
		}
		delay := st.RequestDelay()
		sender := o.senders(destinationURL)

		sent := 0
		for len(queue) > 0 {
			item := queue[0]

			sendErr := o.sendItem(ctx, sender, token, item)
			if sendErr == nil {
				queue = queue[1:]
				sent++
				if err := o.saveQueue(ctx, host, queue); err != nil {
					return err
				}
				if len(queue) > 0 && delay > 0 {
					o.sleep(delay)
				}
				continue
			}

			item.Attempts++
			item.LastError = sendErr.Error()
			queue[0] = item
			if err := o.saveQueue(ctx, host, queue); err != nil {
				return err
			}

			if errors.Is(sendErr, common.ErrUnauthorized) {
				o.logger.Warn(ctx, "drain halted: credential rejected", "host", host, "sent", sent)
			} else {
				o.logger.Info(ctx, "drain stopped on delivery failure",
					"host", host, "item", item.ID, "attempts", item.Attempts, "error", sendErr)
			}
			break
		}

		result = DrainResult{Sent: sent, Remaining: len(queue)}
		return nil
	})
	if err != nil {
		return DrainResult{}, fmt.Errorf("drain %s: %w", host, err)
	}
	return result, nil
}

func (o *Outbox) sendItem(ctx context.Context, sender Sender, token string, item models.QueueItem) error {
	body, err := item.Payload.Body()
	if err != nil {
		return err
	}
	return sender.SendCompletion(ctx, token, body)
}

// cleanup drops expired and over-retried items, then trims the oldest surplus
// if the queue still exceeds the hard cap. Removals are logged as counts.
func (o *Outbox) cleanup(ctx context.Context, destination string, queue []models.QueueItem) []models.QueueItem {
	cutoff := o.now().Add(-o.cfg.TTL)

	kept := make([]models.QueueItem, 0, len(queue))
	expired, overRetried := 0, 0
	for _, item := range queue {
		switch {
		case item.CreatedAt.Before(cutoff):
			expired++
		case item.Attempts >= o.cfg.MaxAttempts:
			overRetried++
		default:
			kept = append(kept, item)
		}
	}

	overflow := 0
	if len(kept) > o.cfg.MaxItems {
		overflow = len(kept) - o.cfg.MaxItems
		kept = kept[overflow:]
	}

	if expired+overRetried+overflow > 0 {
		o.logger.Info(ctx, "outbox cleanup removed items",
			"host", destination, "expired", expired, "overRetried", overRetried, "overflow", overflow)
	}
	return kept
}

func (o *Outbox) loadQueue(ctx context.Context, destination string) ([]models.QueueItem, error) {
	blob, ok, err := o.store.Get(ctx, kvstore.OutboxKey(destination))
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox for %s: %w", destination, err)
	}
	if !ok {
		return nil, nil
	}
	var queue []models.QueueItem
	if err := json.Unmarshal(blob, &queue); err != nil {
		return nil, fmt.Errorf("failed to decode outbox for %s: %w", destination, err)
	}
	return queue, nil
}

func (o *Outbox) saveQueue(ctx context.Context, destination string, queue []models.QueueItem) error {
	if queue == nil {
		queue = []models.QueueItem{}
	}
	blob, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("failed to encode outbox for %s: %w", destination, err)
	}
	if err := o.store.Set(ctx, kvstore.OutboxKey(destination), blob); err != nil {
		return fmt.Errorf("failed to persist outbox for %s: %w", destination, err)
	}
	return nil
}
