package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/store"
)

// Subscriptions persists Subscription records as JSON in a Store, keyed as
// subscription:<provider>:<id>.
type Subscriptions struct {
	store store.Store
}

// NewSubscriptions wraps a store as a subscription repository.
func NewSubscriptions(s store.Store) *Subscriptions {
	return &Subscriptions{store: s}
}

func subscriptionKey(provider, id string) string {
	return fmt.Sprintf("subscription:%s:%s", provider, id)
}

// Save writes or replaces a subscription record.
func (s *Subscriptions) Save(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" || sub.Provider == "" {
		return apperrors.ValidationError("subscription requires provider and id")
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return apperrors.InternalError("failed to encode subscription", err)
	}
	return s.store.Set(ctx, subscriptionKey(sub.Provider, sub.ID), data)
}

// Load fetches one subscription, returning a not-found error when absent.
func (s *Subscriptions) Load(ctx context.Context, provider, id string) (*Subscription, error) {
	data, err := s.store.Get(ctx, subscriptionKey(provider, id))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, apperrors.NotFoundError(fmt.Sprintf("subscription %s/%s not found", provider, id))
		}
		return nil, err
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, apperrors.InternalError("failed to decode subscription", err)
	}
	return &sub, nil
}

// Delete removes a subscription record; deleting an absent record is not an
// error.
func (s *Subscriptions) Delete(ctx context.Context, provider, id string) error {
	err := s.store.Delete(ctx, subscriptionKey(provider, id))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	return err
}

// List returns every stored subscription, optionally scoped to one
// provider.
func (s *Subscriptions) List(ctx context.Context, provider string) ([]*Subscription, error) {
	prefix := "subscription:"
	if provider != "" {
		prefix = fmt.Sprintf("subscription:%s:", provider)
	}
	keys, err := s.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	subs := make([]*Subscription, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		var sub Subscription
		if err := json.Unmarshal(data, &sub); err != nil {
			return nil, apperrors.InternalError("failed to decode subscription", err)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}
