package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключ метаданных для связи объектов Stripe с тенантом
	metadataUserIDKey   = "user_id"
	metadataPlanKey     = "plan"
	metadataIntervalKey = "interval"

	trialPeriodDays = 14
)

// Config конфигурация для клиента Stripe. Ключи передаются явно, глобальный stripe.Key не используется.
type Config struct {
	SecretKey       string
	WebhookSecret   string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
	Prices          PriceTable

	// BackendURL и HTTPClient переопределяют адрес API, используются в тестах.
	BackendURL string
	HTTPClient *http.Client
}

// CheckoutInput параметры Checkout-сессии подписки.
type CheckoutInput struct {
	TenantID   string
	Email      string
	CustomerID string
	Plan       domain.Plan
	Interval   domain.BillingInterval
}

// Client обертка над client.API Stripe. Вызовы идут через политику outbound_api.
type Client struct {
	api    *client.API
	cfg    Config
	policy *resilience.Policy
	log    *logger.Logger
}

// NewClient создает новый экземпляр клиента Stripe.
func NewClient(cfg Config, policy *resilience.Policy, log *logger.Logger) *Client {
	log = log.With("component", "stripe")

	// Повторы выполняет политика, встроенные повторы SDK отключены.
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		LeveledLogger:     log,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &Client{
		api:    client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		cfg:    cfg,
		policy: policy,
		log:    log,
	}
}

// CreateCheckoutSession создает Checkout-сессию в режиме подписки и возвращает ее URL.
// Professional и Business получают 14-дневный пробный период.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	priceID, err := c.cfg.Prices.PriceID(in.Plan, in.Interval)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{
		metadataUserIDKey:   in.TenantID,
		metadataPlanKey:     string(in.Plan),
		metadataIntervalKey: string(in.Interval),
	}

	session, err := resilience.Execute(ctx, c.policy, resilience.ClassOutboundAPI, func(ctx context.Context) (*stripe.CheckoutSession, error) {
		params := &stripe.CheckoutSessionParams{
			Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			ClientReferenceID: stripe.String(in.TenantID),
			SuccessURL:        stripe.String(c.cfg.SuccessURL),
			CancelURL:         stripe.String(c.cfg.CancelURL),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(priceID),
					Quantity: stripe.Int64(1),
				},
			},
			SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
				Metadata: metadata,
			},
		}
		if in.Plan.HasTrial() {
			params.SubscriptionData.TrialPeriodDays = stripe.Int64(trialPeriodDays)
		}
		if in.CustomerID != "" {
			params.Customer = stripe.String(in.CustomerID)
		} else if in.Email != "" {
			params.CustomerEmail = stripe.String(in.Email)
		}
		for k, v := range metadata {
			params.AddMetadata(k, v)
		}
		params.Context = ctx

		s, err := c.api.CheckoutSessions.New(params)
		return s, classify("CreateCheckoutSession", err, c.log)
	})
	if err != nil {
		return "", fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	c.log.Infow("Stripe checkout session created", "sessionID", session.ID, "tenantID", in.TenantID, "plan", in.Plan, "interval", in.Interval)
	return session.URL, nil
}

// CreatePortalSession создает сессию клиентского портала и возвращает ее URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	session, err := resilience.Execute(ctx, c.policy, resilience.ClassOutboundAPI, func(ctx context.Context) (*stripe.BillingPortalSession, error) {
		params := &stripe.BillingPortalSessionParams{
			Customer:  stripe.String(customerID),
			ReturnURL: stripe.String(c.cfg.PortalReturnURL),
		}
		params.Context = ctx

		s, err := c.api.BillingPortalSessions.New(params)
		return s, classify("CreatePortalSession", err, c.log)
	})
	if err != nil {
		return "", fmt.Errorf("stripe: failed to create billing portal session: %w", err)
	}
	return session.URL, nil
}

// GetSubscription читает подписку из Stripe и возвращает ее в том же виде,
// в каком она приходит в объекте события вебхука.
func (c *Client) GetSubscription(ctx context.Context, stripeSubscriptionID string) (map[string]interface{}, error) {
	sub, err := resilience.Execute(ctx, c.policy, resilience.ClassOutboundAPI, func(ctx context.Context) (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx

		s, err := c.api.Subscriptions.Get(stripeSubscriptionID, params)
		return s, classify("GetSubscription", err, c.log)
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, domain.NewNotFoundError("stripe subscription", stripeSubscriptionID)
		}
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}

	raw := []byte(nil)
	if sub.LastResponse != nil {
		raw = sub.LastResponse.RawJSON
	}
	if len(raw) == 0 {
		if raw, err = json.Marshal(sub); err != nil {
			return nil, fmt.Errorf("stripe: failed to encode subscription: %w", err)
		}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("stripe: failed to decode subscription: %w", err)
	}
	return data, nil
}

// classify логирует ошибку Stripe и помечает временные как Transient:
// 429, 5xx и сетевые ошибки без ответа API.
func classify(operation string, err error, log *logger.Logger) error {
	if err == nil {
		return nil
	}
	logStripeError(log, operation, err)

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return resilience.Transient(err)
	}
	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return resilience.Transient(err)
	}
	return err
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
