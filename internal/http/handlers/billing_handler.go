package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/stripe"
	"github.com/Dhoini/steadybooks-integration/internal/middleware"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/internal/service"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/Dhoini/steadybooks-integration/pkg/req"

	"github.com/gin-gonic/gin"
)

// Billing операции биллинга тенанта.
type Billing interface {
	StartCheckout(ctx context.Context, tenantID string, plan domain.Plan, interval domain.BillingInterval) (string, error)
	OpenPortal(ctx context.Context, tenantID string) (string, error)
	Reconcile(ctx context.Context, tenantID string) (*domain.Subscription, error)
}

// CheckoutRequest тело запроса на оформление подписки.
type CheckoutRequest struct {
	Plan     string `json:"plan" validate:"required"`
	Interval string `json:"interval" validate:"omitempty,oneof=month year"`
}

// BillingHandler Checkout, клиентский портал и сверка подписки.
type BillingHandler struct {
	billing Billing
	log     *logger.Logger
}

func NewBillingHandler(billing Billing, log *logger.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, log: log.With("component", "billing_handler")}
}

// Checkout создает Checkout-сессию для тенанта из токена.
func (h *BillingHandler) Checkout(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	if tenantID == "" {
		abortWithError(c, http.StatusUnauthorized, "Tenant ID not found in context", h.log)
		return
	}

	body, err := req.HandleBody[CheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	url, err := h.billing.StartCheckout(c.Request.Context(), tenantID, domain.ParsePlan(body.Plan), domain.ParseBillingInterval(body.Interval))
	if err != nil {
		h.handleError(c, "checkout", tenantID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Portal возвращает ссылку на клиентский портал Stripe.
func (h *BillingHandler) Portal(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	if tenantID == "" {
		abortWithError(c, http.StatusUnauthorized, "Tenant ID not found in context", h.log)
		return
	}

	url, err := h.billing.OpenPortal(c.Request.Context(), tenantID)
	if err != nil {
		h.handleError(c, "portal", tenantID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Reconcile перечитывает подписку тенанта из Stripe.
func (h *BillingHandler) Reconcile(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	if tenantID == "" {
		abortWithError(c, http.StatusUnauthorized, "Tenant ID not found in context", h.log)
		return
	}

	sub, err := h.billing.Reconcile(c.Request.Context(), tenantID)
	if err != nil {
		h.handleError(c, "reconcile", tenantID, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *BillingHandler) handleError(c *gin.Context, op, tenantID string, err error) {
	var storageErr *repository.StorageError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "Not found", h.log)
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, stripe.ErrPriceNotConfigured):
		abortWithError(c, http.StatusBadRequest, err.Error(), h.log)
	case errors.Is(err, service.ErrNoBillingCustomer):
		abortWithError(c, http.StatusConflict, "No billing account yet, complete checkout first", h.log)
	case errors.As(err, &storageErr):
		h.log.Errorw("Billing storage failure", "op", op, "tenantID", tenantID, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Internal server error", h.log)
	case errors.Is(err, resilience.ErrCircuitOpen):
		abortWithError(c, http.StatusServiceUnavailable, "Billing provider temporarily unavailable", h.log)
	default:
		h.log.Errorw("Billing operation failed", "op", op, "tenantID", tenantID, "error", err)
		abortWithError(c, http.StatusBadGateway, "Billing provider error", h.log)
	}
}
