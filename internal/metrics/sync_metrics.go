package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics интерфейс для метрик синхронизации с QuickBooks
type SyncMetrics interface {
	ObserveSync(outcome string, duration time.Duration)
	IncFigureFailure(figure string)
	IncTokenRefresh(outcome string)
}

type syncMetrics struct {
	syncs          *prometheus.HistogramVec
	figureFailures *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec
}

// NewSyncMetrics создает метрики синхронизации
func NewSyncMetrics(registry *prometheus.Registry) SyncMetrics {
	factory := promauto.With(registry)

	return &syncMetrics{
		syncs: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "sync_duration_seconds",
				Help:      "Dashboard sync duration by outcome",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		figureFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "sync_figure_failures_total",
				Help:      "Figure queries degraded to zero",
			},
			[]string{"figure"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "oauth_token_refresh_total",
				Help:      "Access token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *syncMetrics) ObserveSync(outcome string, duration time.Duration) {
	m.syncs.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *syncMetrics) IncFigureFailure(figure string) {
	m.figureFailures.WithLabelValues(figure).Inc()
}

func (m *syncMetrics) IncTokenRefresh(outcome string) {
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}
