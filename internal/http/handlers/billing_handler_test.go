package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/stripe"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/internal/service"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockBilling struct {
	mock.Mock
}

func (m *mockBilling) StartCheckout(ctx context.Context, tenantID string, plan domain.Plan, interval domain.BillingInterval) (string, error) {
	args := m.Called(ctx, tenantID, plan, interval)
	return args.String(0), args.Error(1)
}

func (m *mockBilling) OpenPortal(ctx context.Context, tenantID string) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

func (m *mockBilling) Reconcile(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	args := m.Called(ctx, tenantID)
	sub, _ := args.Get(0).(*domain.Subscription)
	return sub, args.Error(1)
}

func newBillingRouter(t *testing.T, billing *mockBilling, tenantID string) *gin.Engine {
	t.Helper()
	t.Cleanup(func() { billing.AssertExpectations(t) })

	h := NewBillingHandler(billing, logger.NewNop())
	router := newTestRouter()
	group := router.Group("/billing", withTenant(tenantID))
	group.POST("/checkout", h.Checkout)
	group.POST("/portal", h.Portal)
	group.POST("/reconcile", h.Reconcile)
	return router
}

func TestBillingHandler_Checkout(t *testing.T) {
	billing := &mockBilling{}
	billing.On("StartCheckout", mock.Anything, "tenant-1", domain.PlanBusiness, domain.BillingIntervalYear).
		Return("https://checkout.stripe.test/cs_1", nil).Once()
	router := newBillingRouter(t, billing, "tenant-1")

	w := serve(router, http.MethodPost, "/billing/checkout",
		strings.NewReader(`{"plan":"business","interval":"year"}`), jsonHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cs_1")
}

func TestBillingHandler_CheckoutValidation(t *testing.T) {
	router := newBillingRouter(t, &mockBilling{}, "tenant-1")

	for _, body := range []string{`{`, `{"interval":"month"}`, `{"plan":"business","interval":"weekly"}`} {
		w := serve(router, http.MethodPost, "/billing/checkout", strings.NewReader(body), jsonHeaders)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
	}
}

func TestBillingHandler_RequiresTenant(t *testing.T) {
	router := newBillingRouter(t, &mockBilling{}, "")

	w := serve(router, http.MethodPost, "/billing/portal", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBillingHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"no customer", service.ErrNoBillingCustomer, http.StatusConflict},
		{"unknown tenant", fmt.Errorf("load tenant: %w", domain.ErrNotFound), http.StatusNotFound},
		{"breaker open", fmt.Errorf("stripe: %w", resilience.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"provider error", domain.NewExternalServiceError("stripe", "api_error", "boom", 500, nil), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			billing := &mockBilling{}
			billing.On("OpenPortal", mock.Anything, "tenant-1").Return("", tc.err).Once()
			router := newBillingRouter(t, billing, "tenant-1")

			w := serve(router, http.MethodPost, "/billing/portal", nil, nil)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestBillingHandler_CheckoutPriceMissing(t *testing.T) {
	billing := &mockBilling{}
	billing.On("StartCheckout", mock.Anything, "tenant-1", domain.PlanEnterprise, domain.BillingIntervalMonth).
		Return("", fmt.Errorf("%w: plan Enterprise", stripe.ErrPriceNotConfigured)).Once()
	router := newBillingRouter(t, billing, "tenant-1")

	w := serve(router, http.MethodPost, "/billing/checkout", strings.NewReader(`{"plan":"Enterprise"}`), jsonHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillingHandler_Reconcile(t *testing.T) {
	billing := &mockBilling{}
	billing.On("Reconcile", mock.Anything, "tenant-1").Return(&domain.Subscription{
		TenantID:             "tenant-1",
		StripeSubscriptionID: "sub_123",
		Status:               domain.SubscriptionStatusActive,
		Plan:                 domain.PlanProfessional,
	}, nil).Once()
	router := newBillingRouter(t, billing, "tenant-1")

	w := serve(router, http.MethodPost, "/billing/reconcile", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sub_123")
}
