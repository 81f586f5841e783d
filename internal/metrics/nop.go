package metrics

import "time"

// Nop реализует все интерфейсы метрик и ничего не делает.
type Nop struct{}

func (Nop) IncRetry(string)                           {}
func (Nop) IncRejected(string)                        {}
func (Nop) SetBreakerState(string, int)               {}
func (Nop) ObserveCall(string, string, time.Duration) {}
func (Nop) ObserveSync(string, time.Duration)         {}
func (Nop) IncFigureFailure(string)                   {}
func (Nop) IncTokenRefresh(string)                    {}
func (Nop) IncEvent(string, string)                   {}
