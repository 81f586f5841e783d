package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/kafka"
	"github.com/Dhoini/steadybooks-integration/internal/metrics"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
)

// WebhookStore часть хранилища, нужная обработке вебхуков.
type WebhookStore interface {
	repository.SubscriptionStore
	repository.TenantStore
}

// PlanResolver определяет план по Price ID, когда в метаданных подписки его нет
// (например, план сменили в клиентском портале).
type PlanResolver interface {
	PlanForPrice(priceID string) (domain.Plan, domain.BillingInterval, bool)
}

// WebhookService применяет события Stripe к локальным подпискам и тенантам.
// Подпись события проверяется до вызова HandleEvent.
//
// Каждый обработчик перезаписывает поля целиком, поэтому повторная доставка
// приводит к тому же состоянию. Порядок доставки не проверяется: побеждает
// последнее доставленное событие.
type WebhookService struct {
	store     WebhookStore
	publisher kafka.Publisher
	metrics   metrics.WebhookMetrics
	plans     PlanResolver
	log       *logger.Logger
	now       func() time.Time
}

// NewWebhookService создает сервис обработки вебхуков.
func NewWebhookService(store WebhookStore, publisher kafka.Publisher, m metrics.WebhookMetrics, log *logger.Logger) *WebhookService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &WebhookService{
		store:     store,
		publisher: publisher,
		metrics:   m,
		log:       log.With("component", "webhook"),
		now:       time.Now,
	}
}

// WithPlanResolver подключает обратный поиск плана по цене.
func (s *WebhookService) WithPlanResolver(r PlanResolver) *WebhookService {
	s.plans = r
	return s
}

// HandleEvent обрабатывает объект события. Ошибка возвращается только при сбое
// хранилища: в этом случае Stripe должен доставить событие повторно. Ненайденные
// тенанты и подписки логируются и подтверждаются без изменений.
func (s *WebhookService) HandleEvent(ctx context.Context, eventType domain.WebhookEventType, data map[string]interface{}) (domain.WebhookOutcome, error) {
	s.log.Infow("Handling webhook event", "type", eventType, "objectID", getStringValue(data, "id"))

	var (
		outcome domain.WebhookOutcome
		err     error
	)
	switch eventType {
	case domain.WebhookEventCheckoutCompleted:
		outcome, err = s.handleCheckoutCompleted(ctx, data)
	case domain.WebhookEventSubscriptionCreated, domain.WebhookEventSubscriptionUpdated:
		outcome, err = s.handleSubscriptionUpserted(ctx, eventType, data)
	case domain.WebhookEventSubscriptionDeleted:
		outcome, err = s.handleSubscriptionDeleted(ctx, data)
	case domain.WebhookEventInvoicePaymentSucceeded:
		outcome, err = s.handleInvoice(ctx, eventType, data, domain.SubscriptionStatusActive)
	case domain.WebhookEventInvoicePaymentFailed:
		outcome, err = s.handleInvoice(ctx, eventType, data, domain.SubscriptionStatusPastDue)
	default:
		s.log.Infow("Unhandled webhook event type received", "type", eventType)
		outcome = domain.WebhookOutcomeIgnored
	}

	if err != nil {
		s.metrics.IncEvent(string(eventType), "error")
		return outcome, err
	}
	s.metrics.IncEvent(string(eventType), string(outcome))
	return outcome, nil
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, data map[string]interface{}) (domain.WebhookOutcome, error) {
	tenantID := getStringValue(data, "client_reference_id")
	if tenantID == "" {
		tenantID = getStringValue(getMapValue(data, "metadata"), "user_id")
	}
	customerID := getIDValue(data, "customer")

	if tenantID == "" {
		s.log.Warnw("Checkout session has no tenant reference, skipping", "sessionID", getStringValue(data, "id"))
		return domain.WebhookOutcomeSkipped, nil
	}
	if customerID == "" {
		s.log.Warnw("Checkout session has no customer, skipping", "sessionID", getStringValue(data, "id"), "tenantID", tenantID)
		return domain.WebhookOutcomeSkipped, nil
	}

	err := s.store.SetTenantCustomer(ctx, tenantID, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("Tenant for checkout session not found, skipping", "tenantID", tenantID)
		return domain.WebhookOutcomeSkipped, nil
	}
	if err != nil {
		return domain.WebhookOutcomeSkipped, fmt.Errorf("failed to record stripe customer for tenant %s: %w", tenantID, err)
	}

	s.log.Infow("Stripe customer recorded for tenant", "tenantID", tenantID, "customerID", customerID)
	return domain.WebhookOutcomeApplied, nil
}

func (s *WebhookService) handleSubscriptionUpserted(ctx context.Context, eventType domain.WebhookEventType, data map[string]interface{}) (domain.WebhookOutcome, error) {
	stripeSubID := getStringValue(data, "id")
	if stripeSubID == "" {
		s.log.Errorw("Subscription id missing in event data", "type", eventType)
		return domain.WebhookOutcomeSkipped, nil
	}
	metadata := getMapValue(data, "metadata")

	existing, err := s.findSubscription(ctx, stripeSubID, getStringValue(metadata, "user_id"))
	if err != nil {
		return domain.WebhookOutcomeSkipped, err
	}

	// Запись, найденная по Stripe ID, сохраняет своего тенанта.
	tenantID := getStringValue(metadata, "user_id")
	sub := &domain.Subscription{TenantID: tenantID}
	if existing != nil {
		*sub = *existing
		tenantID = existing.TenantID
	}
	if tenantID == "" {
		s.log.Warnw("Subscription has no tenant metadata, skipping", "stripeSubscriptionID", stripeSubID)
		return domain.WebhookOutcomeSkipped, nil
	}
	if _, err := s.store.LoadTenant(ctx, tenantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Tenant for subscription not found, skipping", "tenantID", tenantID, "stripeSubscriptionID", stripeSubID)
			return domain.WebhookOutcomeSkipped, nil
		}
		return domain.WebhookOutcomeSkipped, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	sub.Plan = s.resolvePlan(metadata, data, existing)
	s.applySubscriptionFields(sub, stripeSubID, data)

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return domain.WebhookOutcomeSkipped, fmt.Errorf("failed to upsert subscription %s: %w", stripeSubID, err)
	}
	s.log.Infow("Subscription upserted",
		"type", eventType,
		"tenantID", tenantID,
		"stripeSubscriptionID", stripeSubID,
		"plan", sub.Plan,
		"status", sub.Status,
	)

	if err := s.updateTenantPlan(ctx, tenantID, sub.Plan); err != nil {
		return domain.WebhookOutcomeSkipped, err
	}
	s.publish(ctx, eventType, sub)
	return domain.WebhookOutcomeApplied, nil
}

// resolvePlan выбирает план: метаданные подписки, затем Price ID, затем текущая запись.
func (s *WebhookService) resolvePlan(metadata, data map[string]interface{}, existing *domain.Subscription) domain.Plan {
	if plan := getStringValue(metadata, "plan"); plan != "" {
		return domain.ParsePlan(plan)
	}
	if s.plans != nil {
		priceID := getStringValue(getMapValue(getFirstItem(data), "price"), "id")
		if plan, _, ok := s.plans.PlanForPrice(priceID); ok {
			return plan
		}
	}
	if existing != nil {
		return existing.Plan
	}
	return domain.DefaultPlan
}

// applySubscriptionFields переносит поля объекта подписки Stripe в локальную запись.
func (s *WebhookService) applySubscriptionFields(sub *domain.Subscription, stripeSubID string, data map[string]interface{}) {
	item := getFirstItem(data)
	price := getMapValue(item, "price")

	sub.StripeSubscriptionID = stripeSubID
	sub.Status = domain.ParseSubscriptionStatus(getStringValue(data, "status"))
	if customerID := getIDValue(data, "customer"); customerID != "" {
		sub.StripeCustomerID = customerID
	}
	if priceID := getStringValue(price, "id"); priceID != "" {
		sub.StripePriceID = priceID
	}
	if _, ok := price["unit_amount"]; ok {
		sub.Amount = getFloat64Value(price, "unit_amount") / 100
	}
	sub.Currency = getStringValue(data, "currency")
	if sub.Currency == "" {
		sub.Currency = getStringValue(price, "currency")
	}
	sub.Interval = domain.ParseBillingInterval(getStringValue(getMapValue(price, "recurring"), "interval"))

	// Новые версии API Stripe хранят период на элементе подписки.
	start := firstTime(getTimeValueFromUnix(data, "current_period_start"), getTimeValueFromUnix(item, "current_period_start"))
	end := firstTime(getTimeValueFromUnix(data, "current_period_end"), getTimeValueFromUnix(item, "current_period_end"))
	// Без периода в событии сохраняется период существующей записи.
	if start.IsZero() && end.IsZero() && !sub.CurrentPeriodStart.IsZero() {
		start, end = sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	}
	if start.IsZero() {
		start = s.now().UTC()
	}
	if end.IsZero() {
		end = start.AddDate(0, sub.Interval.Months(), 0)
	}
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end

	sub.TrialStart = getOptionalTime(data, "trial_start")
	sub.TrialEnd = getOptionalTime(data, "trial_end")
	sub.CancelAt = getOptionalTime(data, "cancel_at")
	sub.CanceledAt = getOptionalTime(data, "canceled_at")
}

func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, data map[string]interface{}) (domain.WebhookOutcome, error) {
	stripeSubID := getStringValue(data, "id")
	tenantID := getStringValue(getMapValue(data, "metadata"), "user_id")
	if stripeSubID == "" {
		s.log.Errorw("Subscription id missing in customer.subscription.deleted event data", "tenantID", tenantID)
		return domain.WebhookOutcomeSkipped, nil
	}

	// Удаление применяется только к записи с тем же Stripe ID: у тенанта
	// к этому моменту может быть уже другая подписка.
	sub, err := s.findSubscription(ctx, stripeSubID, tenantID)
	if err != nil {
		return domain.WebhookOutcomeSkipped, err
	}
	if sub != nil && sub.StripeSubscriptionID != stripeSubID {
		s.log.Warnw("Deletion refers to a replaced subscription, skipping",
			"stripeSubscriptionID", stripeSubID,
			"currentStripeSubscriptionID", sub.StripeSubscriptionID,
			"tenantID", sub.TenantID,
		)
		return domain.WebhookOutcomeSkipped, nil
	}
	if sub == nil {
		s.log.Warnw("Received deletion for non-existent local subscription", "stripeSubscriptionID", stripeSubID, "tenantID", tenantID)
		return domain.WebhookOutcomeSkipped, nil
	}

	canceledAt := getTimeValueFromUnix(data, "canceled_at")
	if canceledAt.IsZero() {
		canceledAt = s.now().UTC()
	}
	sub.Status = domain.SubscriptionStatusCanceled
	sub.CanceledAt = &canceledAt

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return domain.WebhookOutcomeSkipped, fmt.Errorf("failed to cancel subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	s.log.Infow("Subscription canceled", "tenantID", sub.TenantID, "stripeSubscriptionID", sub.StripeSubscriptionID)

	if err := s.updateTenantPlan(ctx, sub.TenantID, domain.DefaultPlan); err != nil {
		return domain.WebhookOutcomeSkipped, err
	}
	published := *sub
	published.Plan = domain.DefaultPlan
	s.publish(ctx, domain.WebhookEventSubscriptionDeleted, &published)
	return domain.WebhookOutcomeApplied, nil
}

func (s *WebhookService) handleInvoice(ctx context.Context, eventType domain.WebhookEventType, data map[string]interface{}, status domain.SubscriptionStatus) (domain.WebhookOutcome, error) {
	invoiceID := getStringValue(data, "id")
	stripeSubID := invoiceSubscriptionID(data)
	if stripeSubID == "" {
		s.log.Infow("Invoice is not related to a subscription, skipping", "invoiceID", invoiceID)
		return domain.WebhookOutcomeSkipped, nil
	}

	sub, err := s.store.LoadSubscriptionByStripeID(ctx, stripeSubID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("Received invoice for non-existent local subscription", "invoiceID", invoiceID, "stripeSubscriptionID", stripeSubID)
		return domain.WebhookOutcomeSkipped, nil
	}
	if err != nil {
		return domain.WebhookOutcomeSkipped, fmt.Errorf("failed to load subscription %s: %w", stripeSubID, err)
	}

	sub.Status = status
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return domain.WebhookOutcomeSkipped, fmt.Errorf("failed to update subscription %s: %w", stripeSubID, err)
	}
	if status == domain.SubscriptionStatusPastDue {
		s.log.Warnw("Subscription payment failed",
			"invoiceID", invoiceID,
			"stripeSubscriptionID", stripeSubID,
			"attempt", getInt64Value(data, "attempt_count"),
		)
	} else {
		s.log.Infow("Subscription payment succeeded", "invoiceID", invoiceID, "stripeSubscriptionID", stripeSubID)
	}

	s.publish(ctx, eventType, sub)
	return domain.WebhookOutcomeApplied, nil
}

// findSubscription ищет подписку сначала по Stripe ID, затем по тенанту.
// Отсутствие записи дает nil без ошибки.
func (s *WebhookService) findSubscription(ctx context.Context, stripeSubID, tenantID string) (*domain.Subscription, error) {
	if stripeSubID != "" {
		sub, err := s.store.LoadSubscriptionByStripeID(ctx, stripeSubID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to load subscription %s: %w", stripeSubID, err)
		}
	}
	if tenantID != "" {
		sub, err := s.store.LoadSubscriptionByTenant(ctx, tenantID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to load subscription for tenant %s: %w", tenantID, err)
		}
	}
	return nil, nil
}

func (s *WebhookService) updateTenantPlan(ctx context.Context, tenantID string, plan domain.Plan) error {
	err := s.store.UpdateTenantPlan(ctx, tenantID, plan)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("Tenant not found, plan not updated", "tenantID", tenantID, "plan", plan)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update plan for tenant %s: %w", tenantID, err)
	}
	return nil
}

func (s *WebhookService) publish(ctx context.Context, eventType domain.WebhookEventType, sub *domain.Subscription) {
	err := s.publisher.PublishSubscriptionChanged(ctx, kafka.SubscriptionChanged{
		WebhookType:          eventType,
		TenantID:             sub.TenantID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		Plan:                 sub.Plan,
		Status:               sub.Status,
		OccurredAt:           s.now().UTC(),
	})
	if err != nil {
		s.log.Warnw("Failed to publish subscription event", "stripeSubscriptionID", sub.StripeSubscriptionID, "error", err)
	}
}

// --- Вспомогательные функции ---

// invoiceSubscriptionID достает ID подписки из счета. Старые версии API кладут его
// в поле subscription, новые в parent.subscription_details.
func invoiceSubscriptionID(data map[string]interface{}) string {
	if id := getIDValue(data, "subscription"); id != "" {
		return id
	}
	details := getMapValue(getMapValue(data, "parent"), "subscription_details")
	return getIDValue(details, "subscription")
}

// getStringValue безопасно извлекает строковое значение из map[string]interface{}.
func getStringValue(data map[string]interface{}, key string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return ""
}

// getIDValue читает ссылку на объект Stripe: строку или раскрытый объект с полем id.
func getIDValue(data map[string]interface{}, key string) string {
	if id := getStringValue(data, key); id != "" {
		return id
	}
	return getStringValue(getMapValue(data, key), "id")
}

// getMapValue возвращает вложенный объект или nil.
func getMapValue(data map[string]interface{}, key string) map[string]interface{} {
	if val, ok := data[key].(map[string]interface{}); ok {
		return val
	}
	return nil
}

// getFirstItem возвращает items.data[0] подписки.
func getFirstItem(data map[string]interface{}) map[string]interface{} {
	items, ok := getMapValue(data, "items")["data"].([]interface{})
	if !ok || len(items) == 0 {
		return nil
	}
	item, _ := items[0].(map[string]interface{})
	return item
}

// getInt64Value безопасно извлекает int64 значение из map[string]interface{}.
// Stripe часто возвращает числа как float64, даже если они целые.
func getInt64Value(data map[string]interface{}, key string) int64 {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		case json.Number:
			i, err := v.Int64()
			if err == nil {
				return i
			}
		}
	}
	return 0
}

// getFloat64Value безопасно извлекает float64 значение.
func getFloat64Value(data map[string]interface{}, key string) float64 {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f
			}
		}
	}
	return 0
}

// getTimeValueFromUnix безопасно извлекает время из Unix timestamp.
func getTimeValueFromUnix(data map[string]interface{}, key string) time.Time {
	unixTimestamp := getInt64Value(data, key)
	if unixTimestamp > 0 {
		return time.Unix(unixTimestamp, 0).UTC()
	}
	return time.Time{}
}

func getOptionalTime(data map[string]interface{}, key string) *time.Time {
	t := getTimeValueFromUnix(data, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func firstTime(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
