package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOAuthStateStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisOAuthStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, store.SaveOAuthState(ctx, "csrf-1", 42, time.Minute))

	id, err := store.ConsumeOAuthState(ctx, "csrf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = store.ConsumeOAuthState(ctx, "csrf-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisOAuthStateStore_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisOAuthStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, store.SaveOAuthState(ctx, "csrf-1", 42, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.ConsumeOAuthState(ctx, "csrf-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOAuthStateStore(t *testing.T) {
	store := NewMemoryOAuthStateStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SaveOAuthState(ctx, "csrf-1", 7, time.Minute))
	require.NoError(t, store.SaveOAuthState(ctx, "csrf-2", 8, time.Minute))

	id, err := store.ConsumeOAuthState(ctx, "csrf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = store.ConsumeOAuthState(ctx, "csrf-1")
	assert.ErrorIs(t, err, ErrNotFound)

	now = now.Add(2 * time.Minute)
	_, err = store.ConsumeOAuthState(ctx, "csrf-2")
	assert.ErrorIs(t, err, ErrNotFound)
}
