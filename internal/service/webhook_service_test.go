package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/stretchr/testify/suite"
)

const (
	testTenantID    = "tenant-1"
	testStripeSubID = "sub_123"
)

type failingSubscriptionStore struct {
	*repository.MemoryStore
}

func (failingSubscriptionStore) UpsertSubscription(context.Context, *domain.Subscription) error {
	return &repository.StorageError{Op: "upsert subscription", Transient: true, Err: errors.New("connection reset")}
}

type WebhookServiceSuite struct {
	suite.Suite
	store     *repository.MemoryStore
	publisher *recordingPublisher
	service   *WebhookService
	now       time.Time
}

func TestWebhookServiceSuite(t *testing.T) {
	suite.Run(t, new(WebhookServiceSuite))
}

func (s *WebhookServiceSuite) SetupTest() {
	s.store = repository.NewMemoryStore()
	s.store.PutTenant(domain.Tenant{ID: testTenantID, Email: "owner@firm.test", CurrentPlan: domain.PlanFreeTrial})
	s.publisher = &recordingPublisher{}
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.service = NewWebhookService(s.store, s.publisher, nil, logger.NewNop())
	s.service.now = func() time.Time { return s.now }
}

func subscriptionPayload(status, plan, interval string) map[string]interface{} {
	return map[string]interface{}{
		"id":                   testStripeSubID,
		"object":               "subscription",
		"customer":             "cus_42",
		"status":               status,
		"currency":             "usd",
		"current_period_start": float64(1767225600),
		"current_period_end":   float64(1769904000),
		"trial_end":            float64(1768435200),
		"metadata": map[string]interface{}{
			"user_id":  testTenantID,
			"plan":     plan,
			"interval": interval,
		},
		"items": map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{
					"price": map[string]interface{}{
						"id":          "price_business_month",
						"unit_amount": float64(4900),
						"recurring":   map[string]interface{}{"interval": interval},
					},
				},
			},
		},
	}
}

func (s *WebhookServiceSuite) handle(eventType domain.WebhookEventType, data map[string]interface{}) domain.WebhookOutcome {
	outcome, err := s.service.HandleEvent(context.Background(), eventType, data)
	s.Require().NoError(err)
	return outcome
}

func (s *WebhookServiceSuite) subscription() *domain.Subscription {
	sub, err := s.store.LoadSubscriptionByTenant(context.Background(), testTenantID)
	s.Require().NoError(err)
	return sub
}

func (s *WebhookServiceSuite) tenant() *domain.Tenant {
	t, err := s.store.LoadTenant(context.Background(), testTenantID)
	s.Require().NoError(err)
	return t
}

func (s *WebhookServiceSuite) TestSubscriptionCreatedMapsFields() {
	outcome := s.handle(domain.WebhookEventSubscriptionCreated, subscriptionPayload("trialing", "business", "month"))
	s.Equal(domain.WebhookOutcomeApplied, outcome)

	sub := s.subscription()
	s.Equal(testStripeSubID, sub.StripeSubscriptionID)
	s.Equal("cus_42", sub.StripeCustomerID)
	s.Equal("price_business_month", sub.StripePriceID)
	s.Equal(domain.PlanBusiness, sub.Plan)
	s.Equal(domain.SubscriptionStatusTrialing, sub.Status)
	s.Equal(49.0, sub.Amount)
	s.Equal("usd", sub.Currency)
	s.Equal(domain.BillingIntervalMonth, sub.Interval)
	s.Equal(time.Unix(1767225600, 0).UTC(), sub.CurrentPeriodStart)
	s.Equal(time.Unix(1769904000, 0).UTC(), sub.CurrentPeriodEnd)
	s.Require().NotNil(sub.TrialEnd)
	s.Nil(sub.CanceledAt)

	s.Equal(domain.PlanBusiness, s.tenant().CurrentPlan)
	s.Require().Len(s.publisher.subscriptions, 1)
	s.Equal(testStripeSubID, s.publisher.subscriptions[0].StripeSubscriptionID)
}

func (s *WebhookServiceSuite) TestSubscriptionUpdatedIsIdempotent() {
	payload := subscriptionPayload("active", "professional", "year")

	s.handle(domain.WebhookEventSubscriptionUpdated, payload)
	first := *s.subscription()
	s.handle(domain.WebhookEventSubscriptionUpdated, payload)
	second := *s.subscription()

	first.UpdatedAt, second.UpdatedAt = time.Time{}, time.Time{}
	s.Equal(first, second)
	s.Equal(domain.BillingIntervalYear, second.Interval)
	s.Equal(domain.PlanProfessional, s.tenant().CurrentPlan)
}

func (s *WebhookServiceSuite) TestRepeatedCreateUpdatesInPlace() {
	s.handle(domain.WebhookEventSubscriptionCreated, subscriptionPayload("incomplete", "business", "month"))
	firstID := s.subscription().ID

	s.handle(domain.WebhookEventSubscriptionCreated, subscriptionPayload("active", "business", "month"))

	sub := s.subscription()
	s.Equal(firstID, sub.ID)
	s.Equal(domain.SubscriptionStatusActive, sub.Status)

	byStripe, err := s.store.LoadSubscriptionByStripeID(context.Background(), testStripeSubID)
	s.Require().NoError(err)
	s.Equal(firstID, byStripe.ID)
}

func (s *WebhookServiceSuite) TestUnknownStatusDefaultsToActive() {
	s.handle(domain.WebhookEventSubscriptionUpdated, subscriptionPayload("paused_by_new_api", "business", "month"))

	s.Equal(domain.SubscriptionStatusActive, s.subscription().Status)
}

func (s *WebhookServiceSuite) TestMissingPeriodFallsBackToInterval() {
	payload := subscriptionPayload("active", "enterprise", "year")
	delete(payload, "current_period_start")
	delete(payload, "current_period_end")

	s.handle(domain.WebhookEventSubscriptionCreated, payload)

	sub := s.subscription()
	s.Equal(s.now, sub.CurrentPeriodStart)
	s.Equal(s.now.AddDate(1, 0, 0), sub.CurrentPeriodEnd)
}

func (s *WebhookServiceSuite) TestReplayWithoutPeriodKeepsPeriod() {
	payload := subscriptionPayload("active", "business", "month")
	delete(payload, "current_period_start")
	delete(payload, "current_period_end")

	s.handle(domain.WebhookEventSubscriptionUpdated, payload)
	first := *s.subscription()

	s.now = s.now.Add(3 * time.Hour)
	s.handle(domain.WebhookEventSubscriptionUpdated, payload)
	second := *s.subscription()

	s.Equal(first.CurrentPeriodStart, second.CurrentPeriodStart)
	s.Equal(first.CurrentPeriodEnd, second.CurrentPeriodEnd)
	first.UpdatedAt, second.UpdatedAt = time.Time{}, time.Time{}
	s.Equal(first, second)
}

func (s *WebhookServiceSuite) TestSubscriptionForUnknownTenantIsSkipped() {
	payload := subscriptionPayload("active", "business", "month")
	payload["metadata"].(map[string]interface{})["user_id"] = "ghost-tenant"

	outcome := s.handle(domain.WebhookEventSubscriptionCreated, payload)

	s.Equal(domain.WebhookOutcomeSkipped, outcome)
	_, err := s.store.LoadSubscriptionByTenant(context.Background(), "ghost-tenant")
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.store.LoadSubscriptionByStripeID(context.Background(), testStripeSubID)
	s.ErrorIs(err, repository.ErrNotFound)
	s.Empty(s.publisher.subscriptions)
}

func (s *WebhookServiceSuite) TestLateDeleteOfReplacedSubscriptionIsSkipped() {
	s.handle(domain.WebhookEventSubscriptionCreated, subscriptionPayload("active", "business", "month"))

	upgraded := subscriptionPayload("active", "enterprise", "month")
	upgraded["id"] = "sub_NEW"
	s.handle(domain.WebhookEventSubscriptionUpdated, upgraded)
	s.Equal("sub_NEW", s.subscription().StripeSubscriptionID)

	outcome := s.handle(domain.WebhookEventSubscriptionDeleted, map[string]interface{}{
		"id":       testStripeSubID,
		"status":   "canceled",
		"metadata": map[string]interface{}{"user_id": testTenantID},
	})

	s.Equal(domain.WebhookOutcomeSkipped, outcome)
	sub := s.subscription()
	s.Equal("sub_NEW", sub.StripeSubscriptionID)
	s.Equal(domain.SubscriptionStatusActive, sub.Status)
	s.Nil(sub.CanceledAt)
	s.Equal(domain.PlanEnterprise, s.tenant().CurrentPlan)
}

func (s *WebhookServiceSuite) TestSubscriptionDeletedCancelsAndResetsPlan() {
	for _, status := range []string{"active", "past_due", "trialing"} {
		s.SetupTest()
		s.handle(domain.WebhookEventSubscriptionCreated, subscriptionPayload(status, "enterprise", "month"))
		s.Equal(domain.PlanEnterprise, s.tenant().CurrentPlan)

		outcome := s.handle(domain.WebhookEventSubscriptionDeleted, map[string]interface{}{
			"id":     testStripeSubID,
			"status": "canceled",
		})
		s.Equal(domain.WebhookOutcomeApplied, outcome)

		sub := s.subscription()
		s.Equal(domain.SubscriptionStatusCanceled, sub.Status, status)
		s.Require().NotNil(sub.CanceledAt)
		s.Equal(s.now, *sub.CanceledAt)
		s.Equal(domain.DefaultPlan, s.tenant().CurrentPlan, status)
	}
}

func (s *WebhookServiceSuite) TestDeletedForUnknownSubscriptionIsSkipped() {
	outcome := s.handle(domain.WebhookEventSubscriptionDeleted, map[string]interface{}{"id": "sub_unknown"})

	s.Equal(domain.WebhookOutcomeSkipped, outcome)
	s.Equal(domain.PlanFreeTrial, s.tenant().CurrentPlan)
}

func (s *WebhookServiceSuite) TestInvoiceEventsSetStatus() {
	s.handle(domain.WebhookEventSubscriptionCreated, subscriptionPayload("active", "business", "month"))

	s.handle(domain.WebhookEventInvoicePaymentFailed, map[string]interface{}{
		"id":            "in_1",
		"subscription":  testStripeSubID,
		"attempt_count": float64(2),
	})
	s.Equal(domain.SubscriptionStatusPastDue, s.subscription().Status)

	s.handle(domain.WebhookEventInvoicePaymentSucceeded, map[string]interface{}{
		"id": "in_2",
		"parent": map[string]interface{}{
			"subscription_details": map[string]interface{}{"subscription": testStripeSubID},
		},
	})
	s.Equal(domain.SubscriptionStatusActive, s.subscription().Status)
}

func (s *WebhookServiceSuite) TestInvoiceWithoutSubscriptionIsSkipped() {
	outcome := s.handle(domain.WebhookEventInvoicePaymentSucceeded, map[string]interface{}{"id": "in_1"})

	s.Equal(domain.WebhookOutcomeSkipped, outcome)
	s.Empty(s.publisher.subscriptions)
}

func (s *WebhookServiceSuite) TestCheckoutRecordsCustomer() {
	outcome := s.handle(domain.WebhookEventCheckoutCompleted, map[string]interface{}{
		"id":                  "cs_1",
		"client_reference_id": testTenantID,
		"customer":            "cus_42",
	})

	s.Equal(domain.WebhookOutcomeApplied, outcome)
	s.Equal("cus_42", s.tenant().StripeCustomerID)
}

func (s *WebhookServiceSuite) TestCheckoutFallsBackToMetadata() {
	s.handle(domain.WebhookEventCheckoutCompleted, map[string]interface{}{
		"id":       "cs_1",
		"customer": "cus_42",
		"metadata": map[string]interface{}{"user_id": testTenantID},
	})

	s.Equal("cus_42", s.tenant().StripeCustomerID)
}

func (s *WebhookServiceSuite) TestCheckoutForUnknownTenantFailsSoft() {
	outcome, err := s.service.HandleEvent(context.Background(), domain.WebhookEventCheckoutCompleted, map[string]interface{}{
		"id":                  "cs_1",
		"client_reference_id": "tenant-unknown",
		"customer":            "cus_42",
	})

	s.NoError(err)
	s.Equal(domain.WebhookOutcomeSkipped, outcome)
}

func (s *WebhookServiceSuite) TestUnhandledTypeIsIgnored() {
	outcome := s.handle("customer.subscription.trial_will_end", map[string]interface{}{"id": testStripeSubID})

	s.Equal(domain.WebhookOutcomeIgnored, outcome)
}

func (s *WebhookServiceSuite) TestStorageFailureIsReturned() {
	svc := NewWebhookService(failingSubscriptionStore{s.store}, s.publisher, nil, logger.NewNop())

	_, err := svc.HandleEvent(context.Background(), domain.WebhookEventSubscriptionCreated, subscriptionPayload("active", "business", "month"))

	s.Require().Error(err)
	var storageErr *repository.StorageError
	s.ErrorAs(err, &storageErr)
	s.Empty(s.publisher.subscriptions)
}

type staticPlans map[string]domain.Plan

func (p staticPlans) PlanForPrice(priceID string) (domain.Plan, domain.BillingInterval, bool) {
	plan, ok := p[priceID]
	return plan, domain.BillingIntervalMonth, ok
}

func (s *WebhookServiceSuite) TestPlanResolvedFromPriceWhenMetadataHasNone() {
	s.service.WithPlanResolver(staticPlans{"price_business_month": domain.PlanBusiness})
	payload := subscriptionPayload("active", "", "month")

	s.handle(domain.WebhookEventSubscriptionUpdated, payload)

	s.Equal(domain.PlanBusiness, s.subscription().Plan)
	s.Equal(domain.PlanBusiness, s.tenant().CurrentPlan)
}
