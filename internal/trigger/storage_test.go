package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/store"
)

func TestSubscriptionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	subs := NewSubscriptions(store.NewMemoryStore())

	original := &Subscription{
		ID:        "sub-1",
		Provider:  "github",
		Endpoint:  "https://hooks.example.com/hooks/github/sub-1",
		ExpiresAt: NeverExpires,
		Parameters: map[string]interface{}{
			"repository": "octo/widgets",
		},
		Properties: map[string]string{
			"webhook_id": "42",
			"secret":     "wh-secret",
		},
	}
	require.NoError(t, subs.Save(ctx, original))

	loaded, err := subs.Load(ctx, "github", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestSubscriptionsLoadMissing(t *testing.T) {
	subs := NewSubscriptions(store.NewMemoryStore())

	_, err := subs.Load(context.Background(), "github", "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestSubscriptionsSaveRequiresIdentity(t *testing.T) {
	subs := NewSubscriptions(store.NewMemoryStore())

	err := subs.Save(context.Background(), &Subscription{Provider: "github"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	err = subs.Save(context.Background(), &Subscription{ID: "sub-1"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestSubscriptionsDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	subs := NewSubscriptions(store.NewMemoryStore())

	require.NoError(t, subs.Save(ctx, &Subscription{ID: "sub-1", Provider: "github"}))
	require.NoError(t, subs.Delete(ctx, "github", "sub-1"))
	require.NoError(t, subs.Delete(ctx, "github", "sub-1"))
}

func TestSubscriptionsListByProvider(t *testing.T) {
	ctx := context.Background()
	subs := NewSubscriptions(store.NewMemoryStore())

	require.NoError(t, subs.Save(ctx, &Subscription{ID: "a", Provider: "github"}))
	require.NoError(t, subs.Save(ctx, &Subscription{ID: "b", Provider: "github"}))
	require.NoError(t, subs.Save(ctx, &Subscription{ID: "c", Provider: "slack"}))

	github, err := subs.List(ctx, "github")
	require.NoError(t, err)
	assert.Len(t, github, 2)

	all, err := subs.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSubscriptionExpiry(t *testing.T) {
	now := time.Now()

	forever := &Subscription{ExpiresAt: NeverExpires}
	assert.False(t, forever.IsExpired(now))
	assert.False(t, forever.ExpiresWithin(now, 24*time.Hour))

	soon := &Subscription{ExpiresAt: now.Add(time.Hour).Unix()}
	assert.False(t, soon.IsExpired(now))
	assert.True(t, soon.ExpiresWithin(now, 2*time.Hour))

	past := &Subscription{ExpiresAt: now.Add(-time.Hour).Unix()}
	assert.True(t, past.IsExpired(now))
}
