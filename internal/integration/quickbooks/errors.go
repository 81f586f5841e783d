package quickbooks

import (
	"errors"
	"fmt"

	"github.com/Dhoini/steadybooks-integration/internal/resilience"
)

var (
	// ErrOAuthExchangeFailed обмен кода авторизации не удался
	ErrOAuthExchangeFailed = errors.New("quickbooks: oauth code exchange failed")

	// ErrTokenRefreshFailed обновление токена не удалось, связь требует переподключения
	ErrTokenRefreshFailed = errors.New("quickbooks: token refresh failed")

	// ErrMalformedProviderResponse ответ Intuit не разобран
	ErrMalformedProviderResponse = errors.New("quickbooks: malformed provider response")

	// ErrReconnectRequired пользователь должен заново подключить QuickBooks
	ErrReconnectRequired = errors.New("quickbooks: reconnection required")
)

// ReconnectMessage причина, которая записывается в связь после неудачного обновления.
const ReconnectMessage = "Token refresh failed. Please reconnect."

// ErrorCode код ошибки OAuth
type ErrorCode string

const (
	CodeOAuthExchangeFailed       ErrorCode = "OAuthExchangeFailed"
	CodeTokenRefreshFailed        ErrorCode = "TokenRefreshFailed"
	CodeMalformedProviderResponse ErrorCode = "MalformedProviderResponse"
)

// OAuthError ошибка обмена кода или обновления токена. Никогда не повторяется политикой.
type OAuthError struct {
	Op         string
	Code       ErrorCode
	StatusCode int
	Malformed  bool
	Err        error
}

// Error реализует интерфейс error
func (e *OAuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("quickbooks %s [%s] status %d: %v", e.Op, e.Code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("quickbooks %s [%s]: %v", e.Op, e.Code, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *OAuthError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с сентинелами пакета по коду.
func (e *OAuthError) Is(target error) bool {
	switch target {
	case ErrOAuthExchangeFailed:
		return e.Code == CodeOAuthExchangeFailed
	case ErrTokenRefreshFailed, ErrReconnectRequired:
		return e.Code == CodeTokenRefreshFailed
	case ErrMalformedProviderResponse:
		return e.Malformed || e.Code == CodeMalformedProviderResponse
	}
	return false
}

// FaultKind реализует resilience.Classified.
func (e *OAuthError) FaultKind() resilience.Kind {
	return resilience.KindFatalOAuth
}
