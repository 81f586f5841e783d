package quickbooks

import (
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
)

func newTestPolicy() *resilience.Policy {
	fast := resilience.ClassSettings{
		Retry:   resilience.RetrySettings{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Timeout: time.Second,
	}
	return resilience.NewPolicy(resilience.Settings{OutboundAPI: fast, Storage: fast}, nil, logger.NewNop())
}
