package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/resilience"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Pinger проверка доступности зависимости.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc адаптер функции к Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// BreakerReporter отдает состояние предохранителя класса.
type BreakerReporter interface {
	BreakerState(class resilience.Class) resilience.CircuitState
}

// HealthHandler сводное состояние сервиса. Недоступная зависимость дает 503,
// открытый предохранитель исходящих вызовов только статус degraded.
type HealthHandler struct {
	breakers BreakerReporter
	checks   map[string]Pinger
}

func NewHealthHandler(breakers BreakerReporter, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{breakers: breakers, checks: checks}
}

// HealthCheck обработчик для проверки работоспособности сервиса
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "OK"
	code := http.StatusOK

	deps := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	breaker := resilience.CircuitClosed
	if h.breakers != nil {
		breaker = h.breakers.BreakerState(resilience.ClassOutboundAPI)
	}
	if breaker != resilience.CircuitClosed && code == http.StatusOK {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"time":         time.Now().Format(time.RFC3339),
		"dependencies": deps,
		"breakers": gin.H{
			string(resilience.ClassOutboundAPI): breaker.String(),
		},
	})
}
