package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerhub/internal/store"
)

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	cp := NewCheckpoint(store.NewMemoryStore())

	_, ok, err := cp.Load(ctx, "gmail", "sub-1")
	require.NoError(t, err)
	assert.False(t, ok, "cold start has no cursor")

	require.NoError(t, cp.Save(ctx, "gmail", "sub-1", "12345"))

	cursor, ok, err := cp.Load(ctx, "gmail", "sub-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "12345", cursor)

	// Saving again advances, it does not append.
	require.NoError(t, cp.Save(ctx, "gmail", "sub-1", "12399"))
	cursor, _, err = cp.Load(ctx, "gmail", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "12399", cursor)
}

func TestCheckpointScopedBySubscription(t *testing.T) {
	ctx := context.Background()
	cp := NewCheckpoint(store.NewMemoryStore())

	require.NoError(t, cp.Save(ctx, "gmail", "sub-1", "100"))
	require.NoError(t, cp.Save(ctx, "gmail", "sub-2", "200"))

	cursor, _, err := cp.Load(ctx, "gmail", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "100", cursor)

	cursor, _, err = cp.Load(ctx, "gmail", "sub-2")
	require.NoError(t, err)
	assert.Equal(t, "200", cursor)
}

func TestCheckpointClear(t *testing.T) {
	ctx := context.Background()
	cp := NewCheckpoint(store.NewMemoryStore())

	require.NoError(t, cp.Save(ctx, "gmail", "sub-1", "100"))
	require.NoError(t, cp.Clear(ctx, "gmail", "sub-1"))

	_, ok, err := cp.Load(ctx, "gmail", "sub-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an absent cursor is not an error.
	require.NoError(t, cp.Clear(ctx, "gmail", "sub-1"))
}
