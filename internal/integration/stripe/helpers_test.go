package stripe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
)

func newTestPolicy() *resilience.Policy {
	fast := resilience.ClassSettings{
		Retry:   resilience.RetrySettings{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Timeout: 5 * time.Second,
	}
	return resilience.NewPolicy(resilience.Settings{OutboundAPI: fast, Storage: fast}, nil, logger.NewNop())
}

func testPrices() PriceTable {
	return PriceTable{
		domain.PlanProfessional: {Month: "price_pro_month", Year: "price_pro_year"},
		domain.PlanBusiness:     {Month: "price_biz_month", Year: "price_biz_year"},
		domain.PlanEnterprise:   {Month: "price_ent_month"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		SecretKey:       "sk_test_123",
		SuccessURL:      "https://app.test/billing/success",
		CancelURL:       "https://app.test/billing/cancel",
		PortalReturnURL: "https://app.test/billing",
		Prices:          testPrices(),
		BackendURL:      srv.URL,
		HTTPClient:      srv.Client(),
	}, newTestPolicy(), logger.NewNop())
}
