package kafka

import (
	"context"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

// SubscriptionChanged публикуется после применения вебхука к подписке.
type SubscriptionChanged struct {
	EventID              string                    `json:"event_id"`
	WebhookType          domain.WebhookEventType   `json:"webhook_type"`
	TenantID             string                    `json:"tenant_id"`
	StripeSubscriptionID string                    `json:"stripe_subscription_id"`
	Plan                 domain.Plan               `json:"plan"`
	Status               domain.SubscriptionStatus `json:"status"`
	OccurredAt           time.Time                 `json:"occurred_at"`
}

// ConnectionHealthChanged публикуется, когда синхронизация меняет статус связи.
type ConnectionHealthChanged struct {
	EventID     string                  `json:"event_id"`
	DashboardID int64                   `json:"dashboard_id"`
	RealmID     string                  `json:"realm_id"`
	From        domain.ConnectionStatus `json:"from"`
	To          domain.ConnectionStatus `json:"to"`
	Reason      string                  `json:"reason,omitempty"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

// Publisher публикует доменные события. Публикация best effort: вызывающий код
// логирует ошибку и продолжает работу.
type Publisher interface {
	PublishSubscriptionChanged(ctx context.Context, evt SubscriptionChanged) error
	PublishConnectionHealthChanged(ctx context.Context, evt ConnectionHealthChanged) error
	Close() error
}

// NopPublisher используется, когда брокеры не настроены.
type NopPublisher struct{}

func (NopPublisher) PublishSubscriptionChanged(context.Context, SubscriptionChanged) error { return nil }

func (NopPublisher) PublishConnectionHealthChanged(context.Context, ConnectionHealthChanged) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
