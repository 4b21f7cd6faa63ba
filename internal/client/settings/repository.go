// Package settings loads and stores per-destination sync configuration.
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/models"
)

type Repository struct {
	store kvstore.Store
}

func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

// Get returns the settings for a destination. A destination without a stored
// document gets the defaults; a stored document is overlaid onto the defaults
// so that fields absent from older documents keep their default values.
func (r *Repository) Get(ctx context.Context, host string) (models.DestinationSettings, error) {
	s := models.DefaultDestinationSettings()

	blob, ok, err := r.store.Get(ctx, kvstore.SettingsKey(host))
	if err != nil {
		return s, fmt.Errorf("failed to read settings for %s: %w", host, err)
	}
	if !ok {
		return s, nil
	}
	if err := json.Unmarshal(blob, &s); err != nil {
		return models.DefaultDestinationSettings(), fmt.Errorf("failed to decode settings for %s: %w", host, err)
	}
	return s, nil
}

// Set stores the settings document for a destination.
func (r *Repository) Set(ctx context.Context, host string, s models.DestinationSettings) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings for %s: %w", host, err)
	}
	if err := r.store.Set(ctx, kvstore.SettingsKey(host), blob); err != nil {
		return fmt.Errorf("failed to persist settings for %s: %w", host, err)
	}
	return nil
}
