package trigger

import (
	"context"
	"errors"
	"fmt"

	"triggerhub/internal/store"
)

// Checkpoint persists incremental-fetch cursors keyed by subscription.
// Dispatchers save the advanced cursor before returning so a retried
// delivery replays nothing.
type Checkpoint struct {
	store store.Store
}

// NewCheckpoint wraps a store as a cursor checkpoint.
func NewCheckpoint(s store.Store) *Checkpoint {
	return &Checkpoint{store: s}
}

func checkpointKey(provider, subscriptionID string) string {
	return fmt.Sprintf("checkpoint:%s:%s", provider, subscriptionID)
}

// Load returns the persisted cursor, with ok=false on a cold start.
func (c *Checkpoint) Load(ctx context.Context, provider, subscriptionID string) (string, bool, error) {
	value, err := c.store.Get(ctx, checkpointKey(provider, subscriptionID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(value), true, nil
}

// Save persists the cursor, replacing any previous value.
func (c *Checkpoint) Save(ctx context.Context, provider, subscriptionID, cursor string) error {
	return c.store.Set(ctx, checkpointKey(provider, subscriptionID), []byte(cursor))
}

// Clear drops the cursor, e.g. when the provider invalidated it and the
// dispatcher re-bootstraps from a fresh baseline.
func (c *Checkpoint) Clear(ctx context.Context, provider, subscriptionID string) error {
	err := c.store.Delete(ctx, checkpointKey(provider, subscriptionID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	return err
}
