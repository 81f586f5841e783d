package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState состояние предохранителя.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns a human-readable representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrCircuitOpen возвращается без вызова операции, пока предохранитель открыт.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerSettings параметры предохранителя по доле отказов.
type BreakerSettings struct {
	FailureRatio      float64
	SamplingDuration  time.Duration
	MinimumThroughput int
	BreakDuration     time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = 0.5
	}
	if s.SamplingDuration <= 0 {
		s.SamplingDuration = 30 * time.Second
	}
	if s.MinimumThroughput <= 0 {
		s.MinimumThroughput = 10
	}
	if s.BreakDuration <= 0 {
		s.BreakDuration = 30 * time.Second
	}
	return s
}

const windowBuckets = 10

type bucket struct {
	start    time.Time
	total    int
	failures int
}

// CircuitBreaker считает долю отказов в скользящем окне SamplingDuration,
// разбитом на windowBuckets интервалов.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings

	mu            sync.Mutex
	state         CircuitState
	openedAt      time.Time
	trialInFlight bool
	buckets       [windowBuckets]bucket
	onStateChange func(name string, from, to CircuitState)
	now           func() time.Time
}

// NewCircuitBreaker создает предохранитель в закрытом состоянии.
func NewCircuitBreaker(name string, settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings.withDefaults(),
		state:    CircuitClosed,
		now:      time.Now,
	}
}

// OnStateChange регистрирует колбэк на смену состояния. Колбэк вызывается под
// блокировкой и не должен обращаться к предохранителю.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow решает, можно ли выполнить вызов. В полуоткрытом состоянии пропускается
// ровно один пробный вызов, остальные получают ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.BreakDuration {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
		cb.trialInFlight = true
		return nil
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

// Record фиксирует результат вызова, пропущенного через Allow.
func (cb *CircuitBreaker) Record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	switch cb.state {
	case CircuitHalfOpen:
		cb.trialInFlight = false
		if failed {
			cb.open(now)
			return
		}
		cb.resetWindow()
		cb.transitionTo(CircuitClosed)
	case CircuitClosed:
		b := cb.currentBucket(now)
		b.total++
		if failed {
			b.failures++
		}
		total, failures := cb.windowTotals(now)
		if total >= cb.settings.MinimumThroughput && float64(failures)/float64(total) >= cb.settings.FailureRatio {
			cb.open(now)
		}
	case CircuitOpen:
		// результат запоздавшего вызова, начатого до размыкания
	}
}

// Release возвращает слот пробного вызова без учета результата,
// например когда вызывающий отменил контекст.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen {
		cb.trialInFlight = false
	}
}

// State возвращает текущее состояние. Открытый предохранитель с истекшим
// BreakDuration отдается как half-open: следующий Allow пропустит пробный вызов.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.settings.BreakDuration {
		return CircuitHalfOpen
	}
	return cb.state
}

// Name имя предохранителя для логов и метрик.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.openedAt = now
	cb.resetWindow()
	cb.transitionTo(CircuitOpen)
}

func (cb *CircuitBreaker) transitionTo(to CircuitState) {
	from := cb.state
	cb.state = to
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) bucketWidth() time.Duration {
	w := cb.settings.SamplingDuration / windowBuckets
	if w <= 0 {
		w = time.Millisecond
	}
	return w
}

func (cb *CircuitBreaker) currentBucket(now time.Time) *bucket {
	width := cb.bucketWidth()
	start := now.Truncate(width)
	idx := int((start.UnixNano() / int64(width)) % windowBuckets)
	b := &cb.buckets[idx]
	if !b.start.Equal(start) {
		*b = bucket{start: start}
	}
	return b
}

func (cb *CircuitBreaker) windowTotals(now time.Time) (total, failures int) {
	for i := range cb.buckets {
		b := cb.buckets[i]
		if b.start.IsZero() || now.Sub(b.start) >= cb.settings.SamplingDuration {
			continue
		}
		total += b.total
		failures += b.failures
	}
	return total, failures
}

func (cb *CircuitBreaker) resetWindow() {
	cb.buckets = [windowBuckets]bucket{}
}
