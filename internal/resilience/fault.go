package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Kind класс отказа. Определяет, повторяется ли вызов и как он отражается на состоянии связи.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient сеть или таймаут, повторяется по политике
	KindTransient
	// KindFatalOAuth неверный код авторизации или неудачное обновление токена
	KindFatalOAuth
	// KindFatalProtocol неверная подпись или тело вебхука
	KindFatalProtocol
	// KindDegradedPartial один из параллельных запросов не удался
	KindDegradedPartial
	// KindResourceUnavailable хранилище недоступно
	KindResourceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatalOAuth:
		return "fatal_oauth"
	case KindFatalProtocol:
		return "fatal_protocol"
	case KindDegradedPartial:
		return "degraded_partial"
	case KindResourceUnavailable:
		return "resource_unavailable"
	default:
		return "unknown"
	}
}

// Classified реализуют ошибки, которые сами знают свой класс.
type Classified interface {
	FaultKind() Kind
}

// KindOf определяет класс ошибки. Ошибки с FaultKind имеют приоритет,
// затем распознаются сетевые ошибки и таймауты.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var c Classified
	if errors.As(err, &c) {
		return c.FaultKind()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAttemptTimeout) {
		return KindTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && !errors.Is(err, context.Canceled) {
		return KindTransient
	}

	return KindUnknown
}

// IsTransient true для ошибок, которые имеет смысл повторять.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// TransientError помечает ошибку как временную.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) FaultKind() Kind { return KindTransient }

// Transient оборачивает err в TransientError.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}
