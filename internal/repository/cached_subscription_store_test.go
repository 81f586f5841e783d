package repository

import (
	"context"
	"testing"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCachedStore(t *testing.T) (*CachedSubscriptionStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewNop()
	mem := NewMemoryStore()
	return NewCachedSubscriptionStore(mem, NewRedisCache(client, 0, log), log), mem, mr
}

func TestCachedSubscriptionStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store, mem, mr := newTestCachedStore(t)
	require.NoError(t, mem.UpsertSubscription(ctx, newSubscription("tenant-1", "sub_1")))

	got, err := store.LoadSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.TenantID)

	assert.True(t, mr.Exists(subscriptionKeyPrefix+"sub_1"))
	assert.True(t, mr.Exists(tenantSubscriptionKeyPrefix+"tenant-1"))
}

func TestCachedSubscriptionStore_UpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newTestCachedStore(t)

	require.NoError(t, store.UpsertSubscription(ctx, newSubscription("tenant-1", "sub_1")))
	_, err := store.LoadSubscriptionByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	require.True(t, mr.Exists(tenantSubscriptionKeyPrefix+"tenant-1"))

	updated := newSubscription("tenant-1", "sub_2")
	updated.Status = domain.SubscriptionStatusPastDue
	require.NoError(t, store.UpsertSubscription(ctx, updated))

	assert.False(t, mr.Exists(tenantSubscriptionKeyPrefix+"tenant-1"))
	assert.False(t, mr.Exists(subscriptionKeyPrefix+"sub_1"))

	got, err := store.LoadSubscriptionByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, got.Status)
}

func TestCachedSubscriptionStore_CacheOutageFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store, mem, mr := newTestCachedStore(t)
	require.NoError(t, mem.UpsertSubscription(ctx, newSubscription("tenant-1", "sub_1")))

	mr.Close()

	got, err := store.LoadSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
}

func TestCachedSubscriptionStore_MissPropagatesNotFound(t *testing.T) {
	store, _, _ := newTestCachedStore(t)

	_, err := store.LoadSubscriptionByStripeID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
