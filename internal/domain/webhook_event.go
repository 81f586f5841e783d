package domain

// WebhookEventType тип события вебхука Stripe
type WebhookEventType string

const (
	WebhookEventCheckoutCompleted       WebhookEventType = "checkout.session.completed"
	WebhookEventSubscriptionCreated     WebhookEventType = "customer.subscription.created"
	WebhookEventSubscriptionUpdated     WebhookEventType = "customer.subscription.updated"
	WebhookEventSubscriptionDeleted     WebhookEventType = "customer.subscription.deleted"
	WebhookEventInvoicePaymentSucceeded WebhookEventType = "invoice.payment_succeeded"
	WebhookEventInvoicePaymentFailed    WebhookEventType = "invoice.payment_failed"
)

// WebhookOutcome результат применения события к локальному состоянию.
type WebhookOutcome string

const (
	WebhookOutcomeApplied WebhookOutcome = "applied"
	// WebhookOutcomeSkipped событие подтверждено без изменений (тенант или подписка не найдены)
	WebhookOutcomeSkipped WebhookOutcome = "skipped"
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
)
