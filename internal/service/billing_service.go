package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/stripe"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
)

// ErrNoBillingCustomer у тенанта еще нет клиента Stripe
var ErrNoBillingCustomer = errors.New("tenant has no billing customer")

// BillingGateway операции платежного провайдера.
type BillingGateway interface {
	CreateCheckoutSession(ctx context.Context, in stripe.CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (map[string]interface{}, error)
}

// BillingService оформление подписок и сверка их состояния со Stripe.
type BillingService struct {
	store    WebhookStore
	gateway  BillingGateway
	webhooks *WebhookService
	log      *logger.Logger
}

// NewBillingService создает сервис биллинга. Сверка применяет подписку через
// тот же обработчик, что и вебхук customer.subscription.updated.
func NewBillingService(store WebhookStore, gateway BillingGateway, webhooks *WebhookService, log *logger.Logger) *BillingService {
	return &BillingService{
		store:    store,
		gateway:  gateway,
		webhooks: webhooks,
		log:      log.With("component", "billing"),
	}
}

// StartCheckout возвращает URL Checkout-сессии для платного плана.
func (s *BillingService) StartCheckout(ctx context.Context, tenantID string, plan domain.Plan, interval domain.BillingInterval) (string, error) {
	tenant, err := s.store.LoadTenant(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutInput{
		TenantID:   tenant.ID,
		Email:      tenant.Email,
		CustomerID: tenant.StripeCustomerID,
		Plan:       plan,
		Interval:   interval,
	})
	if err != nil {
		return "", err
	}

	s.log.Infow("Checkout started", "tenantID", tenantID, "plan", plan, "interval", interval)
	return url, nil
}

// OpenPortal возвращает URL клиентского портала Stripe.
func (s *BillingService) OpenPortal(ctx context.Context, tenantID string) (string, error) {
	tenant, err := s.store.LoadTenant(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	if tenant.StripeCustomerID == "" {
		return "", ErrNoBillingCustomer
	}
	return s.gateway.CreatePortalSession(ctx, tenant.StripeCustomerID)
}

// Reconcile перечитывает подписку тенанта из Stripe и применяет ее локально.
// Используется, когда вебхук потерян или пришел не по порядку.
func (s *BillingService) Reconcile(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	local, err := s.store.LoadSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription for tenant %s: %w", tenantID, err)
	}

	data, err := s.gateway.GetSubscription(ctx, local.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	if getStringValue(getMapValue(data, "metadata"), "user_id") == "" {
		// Подписки, созданные вне Checkout, не несут тенанта в метаданных.
		metadata := getMapValue(data, "metadata")
		if metadata == nil {
			metadata = map[string]interface{}{}
			data["metadata"] = metadata
		}
		metadata["user_id"] = tenantID
	}

	eventType := domain.WebhookEventSubscriptionUpdated
	if domain.ParseSubscriptionStatus(getStringValue(data, "status")) == domain.SubscriptionStatusCanceled {
		eventType = domain.WebhookEventSubscriptionDeleted
	}
	if _, err := s.webhooks.HandleEvent(ctx, eventType, data); err != nil {
		return nil, err
	}

	sub, err := s.store.LoadSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload subscription for tenant %s: %w", tenantID, err)
	}
	s.log.Infow("Subscription reconciled", "tenantID", tenantID, "stripeSubscriptionID", sub.StripeSubscriptionID, "status", sub.Status)
	return sub, nil
}
