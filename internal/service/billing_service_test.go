package service

import (
	"context"
	"testing"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/stripe"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, in stripe.CheckoutInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) GetSubscription(ctx context.Context, id string) (map[string]interface{}, error) {
	args := m.Called(ctx, id)
	data, _ := args.Get(0).(map[string]interface{})
	return data, args.Error(1)
}

func newBillingFixture(t *testing.T) (*BillingService, *repository.MemoryStore, *mockGateway) {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutTenant(domain.Tenant{ID: testTenantID, Email: "owner@firm.test", CurrentPlan: domain.PlanFreeTrial})
	gateway := &mockGateway{}
	t.Cleanup(func() { gateway.AssertExpectations(t) })

	webhooks := NewWebhookService(store, nil, nil, logger.NewNop())
	return NewBillingService(store, gateway, webhooks, logger.NewNop()), store, gateway
}

func TestBillingService_StartCheckout(t *testing.T) {
	svc, _, gateway := newBillingFixture(t)
	gateway.On("CreateCheckoutSession", mock.Anything, stripe.CheckoutInput{
		TenantID: testTenantID,
		Email:    "owner@firm.test",
		Plan:     domain.PlanProfessional,
		Interval: domain.BillingIntervalMonth,
	}).Return("https://checkout.stripe.test/cs_1", nil).Once()

	url, err := svc.StartCheckout(context.Background(), testTenantID, domain.PlanProfessional, domain.BillingIntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", url)
}

func TestBillingService_StartCheckoutUnknownTenant(t *testing.T) {
	svc, _, _ := newBillingFixture(t)

	_, err := svc.StartCheckout(context.Background(), "tenant-unknown", domain.PlanBusiness, domain.BillingIntervalYear)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBillingService_OpenPortalRequiresCustomer(t *testing.T) {
	svc, store, gateway := newBillingFixture(t)

	_, err := svc.OpenPortal(context.Background(), testTenantID)
	assert.ErrorIs(t, err, ErrNoBillingCustomer)

	require.NoError(t, store.SetTenantCustomer(context.Background(), testTenantID, "cus_42"))
	gateway.On("CreatePortalSession", mock.Anything, "cus_42").Return("https://billing.stripe.test/p/1", nil).Once()

	url, err := svc.OpenPortal(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/p/1", url)
}

func TestBillingService_ReconcileAppliesRemoteState(t *testing.T) {
	svc, store, gateway := newBillingFixture(t)
	sub := &domain.Subscription{
		TenantID:             testTenantID,
		StripeSubscriptionID: testStripeSubID,
		Plan:                 domain.PlanBusiness,
		Status:               domain.SubscriptionStatusActive,
	}
	require.NoError(t, store.UpsertSubscription(context.Background(), sub))

	remote := subscriptionPayload("past_due", "business", "month")
	delete(remote, "metadata")
	gateway.On("GetSubscription", mock.Anything, testStripeSubID).Return(remote, nil).Once()

	got, err := svc.Reconcile(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, got.Status)
	assert.Equal(t, domain.PlanBusiness, got.Plan)
	assert.Equal(t, sub.ID, got.ID)
}

func TestBillingService_ReconcileCanceledRemote(t *testing.T) {
	svc, store, gateway := newBillingFixture(t)
	require.NoError(t, store.UpsertSubscription(context.Background(), &domain.Subscription{
		TenantID:             testTenantID,
		StripeSubscriptionID: testStripeSubID,
		Plan:                 domain.PlanEnterprise,
		Status:               domain.SubscriptionStatusActive,
	}))
	require.NoError(t, store.UpdateTenantPlan(context.Background(), testTenantID, domain.PlanEnterprise))

	gateway.On("GetSubscription", mock.Anything, testStripeSubID).
		Return(map[string]interface{}{"id": testStripeSubID, "status": "canceled"}, nil).Once()

	got, err := svc.Reconcile(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, got.Status)

	tenant, err := store.LoadTenant(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPlan, tenant.CurrentPlan)
}
