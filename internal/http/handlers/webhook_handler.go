package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/stripe"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)
)

// EventVerifier проверяет подпись вебхука и разбирает событие.
type EventVerifier interface {
	Verify(payload []byte, signature string) (stripe.WebhookEvent, error)
}

// WebhookProcessor применяет проверенное событие к локальному состоянию.
type WebhookProcessor interface {
	HandleEvent(ctx context.Context, eventType domain.WebhookEventType, data map[string]interface{}) (domain.WebhookOutcome, error)
}

// WebhookHandler обрабатывает входящие вебхуки от Stripe.
type WebhookHandler struct {
	verifier  EventVerifier
	processor WebhookProcessor
	log       *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(verifier EventVerifier, processor WebhookProcessor, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		log:       log.With("component", "webhook_handler"),
	}
}

// HandleStripeWebhook принимает вебхук Stripe. 400 только при неверной подписи,
// 500 при сбое хранилища (Stripe повторит доставку), иначе 200.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Тело читается один раз: подпись считается по сырым байтам.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()

	if err != nil {
		h.log.Errorw("Failed to read webhook request body", "error", err)
		abortWithError(c, http.StatusBadRequest, "Cannot read request body", h.log)
		return
	}

	sigHeader := c.GetHeader(stripe.SignatureHeader)
	if sigHeader == "" {
		h.log.Warnw("Missing Stripe-Signature header")
		abortWithError(c, http.StatusBadRequest, "Missing Stripe-Signature header", h.log)
		return
	}

	event, err := h.verifier.Verify(payload, sigHeader)
	if err != nil {
		h.log.Errorw("Webhook signature verification failed", "error", err)
		abortWithError(c, http.StatusBadRequest, "Webhook signature verification failed", h.log)
		return
	}

	h.log.Infow("Received verified Stripe event", "eventID", event.ID, "eventType", event.Type)

	outcome, err := h.processor.HandleEvent(c.Request.Context(), event.Type, event.Object)
	if err != nil {
		h.log.Errorw("Error processing webhook event", "error", err, "eventID", event.ID, "eventType", event.Type)
		if errors.Is(err, domain.ErrWebhookValidationFailed) {
			abortWithError(c, http.StatusBadRequest, "Invalid webhook event", h.log)
			return
		}
		abortWithError(c, http.StatusInternalServerError, "Internal server error processing webhook", h.log)
		return
	}

	h.log.Infow("Webhook event handled", "eventID", event.ID, "eventType", event.Type, "outcome", outcome)
	c.Status(http.StatusOK)
}
