package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscription(tenantID, stripeID string) *domain.Subscription {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Subscription{
		TenantID:             tenantID,
		StripeSubscriptionID: stripeID,
		Plan:                 domain.PlanProfessional,
		Status:               domain.SubscriptionStatusActive,
		Interval:             domain.BillingIntervalMonth,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.AddDate(0, 1, 0),
	}
}

func TestMemoryStore_UpsertKeepsOneRecordPerTenant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := newSubscription("tenant-1", "sub_1")
	require.NoError(t, store.UpsertSubscription(ctx, first))

	second := newSubscription("tenant-1", "sub_2")
	second.Status = domain.SubscriptionStatusTrialing
	require.NoError(t, store.UpsertSubscription(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	got, err := store.LoadSubscriptionByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_2", got.StripeSubscriptionID)
	assert.Equal(t, domain.SubscriptionStatusTrialing, got.Status)

	_, err = store.LoadSubscriptionByStripeID(ctx, "sub_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_StripeIDUniqueAcrossTenants(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertSubscription(ctx, newSubscription("tenant-1", "sub_1")))
	err := store.UpsertSubscription(ctx, newSubscription("tenant-2", "sub_1"))

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.False(t, storageErr.Transient)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.UpsertSubscription(ctx, newSubscription("tenant-1", "sub_1")))

	got, err := store.LoadSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	got.Status = domain.SubscriptionStatusCanceled

	again, err := store.LoadSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, again.Status)
}

func TestMemoryStore_DisconnectClearsTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	conn := &domain.Connection{
		DashboardID:  7,
		RealmID:      "realm",
		AccessToken:  "access",
		RefreshToken: "refresh",
		IsActive:     true,
		Status:       domain.ConnectionStatusConnected,
	}
	require.NoError(t, store.SaveConnection(ctx, conn))
	require.NoError(t, store.DisconnectConnection(ctx, 7))

	got, err := store.LoadConnection(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	assert.False(t, got.IsActive)
	assert.Equal(t, domain.ConnectionStatusDisconnected, got.Status)

	assert.ErrorIs(t, store.DisconnectConnection(ctx, 8), ErrNotFound)
}

func TestMemoryStore_DashboardConfigDefaults(t *testing.T) {
	store := NewMemoryStore()

	cfg, err := store.LoadDashboardConfig(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDashboardConfig(3), *cfg)
}

func TestMemoryStore_TenantUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutTenant(domain.Tenant{ID: "tenant-1", CurrentPlan: domain.PlanFreeTrial})

	require.NoError(t, store.UpdateTenantPlan(ctx, "tenant-1", domain.PlanBusiness))
	require.NoError(t, store.SetTenantCustomer(ctx, "tenant-1", "cus_1"))

	got, err := store.LoadTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanBusiness, got.CurrentPlan)
	assert.Equal(t, "cus_1", got.StripeCustomerID)

	assert.ErrorIs(t, store.UpdateTenantPlan(ctx, "missing", domain.PlanBusiness), ErrNotFound)
}
