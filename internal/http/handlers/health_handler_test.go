package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/stretchr/testify/assert"
)

type stubBreakers resilience.CircuitState

func (s stubBreakers) BreakerState(resilience.Class) resilience.CircuitState {
	return resilience.CircuitState(s)
}

func healthCode(h *HealthHandler) (int, string) {
	router := newTestRouter()
	router.GET("/health", h.HealthCheck)
	w := serve(router, http.MethodGet, "/health", nil, nil)
	return w.Code, w.Body.String()
}

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	code, body := healthCode(NewHealthHandler(stubBreakers(resilience.CircuitClosed), map[string]Pinger{"database": ok}))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"OK"`)

	code, body = healthCode(NewHealthHandler(stubBreakers(resilience.CircuitOpen), map[string]Pinger{"database": ok}))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"degraded"`)
	assert.Contains(t, body, `"outbound_api":"open"`)

	code, body = healthCode(NewHealthHandler(nil, map[string]Pinger{"database": ok, "redis": down}))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "refused")
}
