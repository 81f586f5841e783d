package stripe

import (
	"fmt"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/stripe/stripe-go/v78/webhook"
)

// SignatureHeader заголовок с подписью вебхука Stripe
const SignatureHeader = "Stripe-Signature"

// WebhookEvent проверенное событие Stripe: тип и объект события.
type WebhookEvent struct {
	ID     string
	Type   domain.WebhookEventType
	Object map[string]interface{}
}

// WebhookVerifier проверяет подпись вебхука общим секретом.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier создает верификатор с секретом конечной точки.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify проверяет подпись и разбирает событие. Любая ошибка оборачивает
// domain.ErrWebhookValidationFailed и не повторяется.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (WebhookEvent, error) {
	if signature == "" {
		return WebhookEvent{}, fmt.Errorf("%w: no %s header", domain.ErrWebhookValidationFailed, SignatureHeader)
	}

	// Версия API аккаунта может отличаться от версии SDK, поля объекта читаются как map.
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
	}
	if event.Data == nil || event.Data.Object == nil {
		return WebhookEvent{}, fmt.Errorf("%w: event %s has no data object", domain.ErrWebhookValidationFailed, event.ID)
	}

	return WebhookEvent{
		ID:     event.ID,
		Type:   domain.WebhookEventType(event.Type),
		Object: event.Data.Object,
	}, nil
}
