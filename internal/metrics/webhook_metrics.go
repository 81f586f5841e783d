package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebhookMetrics интерфейс для метрик вебхуков
type WebhookMetrics interface {
	IncEvent(eventType, outcome string)
}

type webhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics создает метрики вебхуков
func NewWebhookMetrics(registry *prometheus.Registry) WebhookMetrics {
	return &webhookMetrics{
		events: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "webhook_events_total",
				Help:      "Stripe webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}
}

func (m *webhookMetrics) IncEvent(eventType, outcome string) {
	m.events.WithLabelValues(eventType, outcome).Inc()
}
