package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/metrics"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/cenkalti/backoff/v4"
)

// ErrAttemptTimeout попытка не уложилась в таймаут класса. Считается временной ошибкой.
var ErrAttemptTimeout = errors.New("resilience: attempt timed out")

// Operation единица работы под политикой. ctx ограничен таймаутом попытки.
type Operation[T any] func(ctx context.Context) (T, error)

type pipeline struct {
	class    Class
	settings ClassSettings
	breaker  *CircuitBreaker
}

// Policy применяет к операциям предохранитель, повторы с экспоненциальной паузой
// и таймаут каждой попытки. Один экземпляр на процесс, безопасен для конкурентного использования.
type Policy struct {
	pipelines map[Class]*pipeline
	log       *logger.Logger
	metrics   metrics.ResilienceMetrics
}

// NewPolicy создает политику для обоих классов операций.
func NewPolicy(settings Settings, m metrics.ResilienceMetrics, log *logger.Logger) *Policy {
	if m == nil {
		m = metrics.Nop{}
	}
	p := &Policy{
		pipelines: make(map[Class]*pipeline, 2),
		log:       log.With("component", "resilience"),
		metrics:   m,
	}
	p.pipelines[ClassOutboundAPI] = p.newPipeline(ClassOutboundAPI, settings.OutboundAPI)
	p.pipelines[ClassStorage] = p.newPipeline(ClassStorage, settings.Storage)
	return p
}

func (p *Policy) newPipeline(class Class, s ClassSettings) *pipeline {
	s.Retry = s.Retry.withDefaults()
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	pipe := &pipeline{class: class, settings: s}
	if s.Breaker != nil {
		pipe.breaker = NewCircuitBreaker(string(class), *s.Breaker)
		pipe.breaker.OnStateChange(p.onBreakerStateChange)
		p.metrics.SetBreakerState(string(class), int(CircuitClosed))
	}
	return pipe
}

func (p *Policy) onBreakerStateChange(name string, from, to CircuitState) {
	p.metrics.SetBreakerState(name, int(to))
	switch to {
	case CircuitOpen:
		p.log.Errorw("Circuit breaker opened", "breaker", name, "from", from.String())
	case CircuitHalfOpen:
		p.log.Infow("Circuit breaker half-opened, testing service", "breaker", name)
	case CircuitClosed:
		p.log.Infow("Circuit breaker closed, service recovered", "breaker", name)
	}
}

// BreakerState состояние предохранителя класса. Класс без предохранителя всегда closed.
func (p *Policy) BreakerState(class Class) CircuitState {
	pipe, ok := p.pipelines[class]
	if !ok || pipe.breaker == nil {
		return CircuitClosed
	}
	return pipe.breaker.State()
}

// Breaker возвращает предохранитель класса или nil.
func (p *Policy) Breaker(class Class) *CircuitBreaker {
	if pipe, ok := p.pipelines[class]; ok {
		return pipe.breaker
	}
	return nil
}

// Run выполняет операцию без результата.
func (p *Policy) Run(ctx context.Context, class Class, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, class, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute выполняет op под политикой класса. Открытый предохранитель отклоняет вызов
// с ErrCircuitOpen, не вызывая op. Повторяются только временные ошибки; отмена ctx
// прерывает ожидание между попытками.
func Execute[T any](ctx context.Context, p *Policy, class Class, op Operation[T]) (T, error) {
	var zero T
	pipe, ok := p.pipelines[class]
	if !ok {
		return zero, fmt.Errorf("resilience: unknown operation class %q", class)
	}

	if pipe.breaker != nil {
		if err := pipe.breaker.Allow(); err != nil {
			p.metrics.IncRejected(string(class))
			p.log.Debugw("Call rejected by open circuit breaker", "class", class)
			return zero, err
		}
	}

	start := time.Now()
	result, err := runWithRetry(ctx, p, pipe, op)
	p.metrics.ObserveCall(string(class), outcome(err), time.Since(start))

	if pipe.breaker != nil {
		switch {
		case err != nil && errors.Is(err, ErrCircuitOpen):
			pipe.breaker.Release()
		case err != nil && ctx.Err() != nil:
			pipe.breaker.Release()
		default:
			pipe.breaker.Record(err != nil && IsTransient(err))
		}
	}

	if err != nil {
		return zero, err
	}
	return result, nil
}

func runWithRetry[T any](ctx context.Context, p *Policy, pipe *pipeline, op Operation[T]) (T, error) {
	var result T
	retry := pipe.settings.Retry
	attempt := 0

	attemptOnce := func() error {
		attempt++
		if attempt > 1 && pipe.breaker != nil && pipe.breaker.State() == CircuitOpen {
			return backoff.Permanent(ErrCircuitOpen)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, pipe.settings.Timeout)
		defer cancel()

		r, err := op(attemptCtx)
		if err == nil {
			result = r
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, pipe.settings.Timeout, err)
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		p.metrics.IncRetry(string(pipe.class))
		p.log.Warnw("Operation retry scheduled",
			"class", pipe.class,
			"attempt", attempt,
			"max_attempts", retry.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
	}

	err := backoff.RetryNotify(attemptOnce, newBackOff(ctx, retry), notify)
	return result, err
}

// newBackOff экспоненциальная пауза с джиттером, ограниченная MaxDelay, не более MaxAttempts попыток.
func newBackOff(ctx context.Context, s RetrySettings) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.InitialDelay
	exp.MaxInterval = s.MaxDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0
	exp.Reset()

	capped := &cappedBackOff{BackOff: exp, max: s.MaxDelay}
	return backoff.WithContext(backoff.WithMaxRetries(capped, uint64(s.MaxAttempts-1)), ctx)
}

// cappedBackOff срезает паузу после джиттера до max.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (b *cappedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next != backoff.Stop && next > b.max {
		return b.max
	}
	return next
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "rejected"
	default:
		return KindOf(err).String()
	}
}
