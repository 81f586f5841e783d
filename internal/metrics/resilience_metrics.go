package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResilienceMetrics интерфейс для метрик политики устойчивости
type ResilienceMetrics interface {
	IncRetry(class string)
	IncRejected(class string)
	SetBreakerState(name string, state int)
	ObserveCall(class, outcome string, duration time.Duration)
}

type resilienceMetrics struct {
	retries      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	calls        *prometheus.HistogramVec
}

// NewResilienceMetrics регистрирует метрики повторов и предохранителя.
func NewResilienceMetrics(registry *prometheus.Registry) ResilienceMetrics {
	factory := promauto.With(registry)

	return &resilienceMetrics{
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "resilience_retries_total",
				Help:      "The total number of retried attempts",
			},
			[]string{"class"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "resilience_breaker_rejections_total",
				Help:      "Calls rejected without invocation because the breaker was open",
			},
			[]string{"class"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "resilience_breaker_state",
				Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
			},
			[]string{"breaker"},
		),
		calls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "resilience_call_duration_seconds",
				Help:      "Duration of policy-wrapped calls including retries",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"class", "outcome"},
		),
	}
}

func (m *resilienceMetrics) IncRetry(class string) {
	m.retries.WithLabelValues(class).Inc()
}

func (m *resilienceMetrics) IncRejected(class string) {
	m.rejected.WithLabelValues(class).Inc()
}

func (m *resilienceMetrics) SetBreakerState(name string, state int) {
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *resilienceMetrics) ObserveCall(class, outcome string, duration time.Duration) {
	m.calls.WithLabelValues(class, outcome).Observe(duration.Seconds())
}
