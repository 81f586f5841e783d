package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/quickbooks"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"

	"github.com/gin-gonic/gin"
)

// QuickBooksConnector OAuth-операции подключения QuickBooks.
type QuickBooksConnector interface {
	BuildAuthorizationURL(correlationID, csrfState string) string
	Connect(ctx context.Context, dashboardID int64, code, realmID string) (*domain.Connection, error)
}

// callbackQuery параметры редиректа Intuit после экрана согласия.
type callbackQuery struct {
	Code    string `form:"code" binding:"required"`
	State   string `form:"state" binding:"required"`
	RealmID string `form:"realmId" binding:"required"`
}

// QuickBooksHandler подключение, статус и отключение QuickBooks для дашборда.
type QuickBooksHandler struct {
	connector   QuickBooksConnector
	states      repository.OAuthStateStore
	connections repository.ConnectionStore
	log         *logger.Logger
}

// NewQuickBooksHandler создает обработчик QuickBooks.
func NewQuickBooksHandler(
	connector QuickBooksConnector,
	states repository.OAuthStateStore,
	connections repository.ConnectionStore,
	log *logger.Logger,
) *QuickBooksHandler {
	return &QuickBooksHandler{
		connector:   connector,
		states:      states,
		connections: connections,
		log:         log.With("component", "quickbooks_handler"),
	}
}

// Connect выдает ссылку на страницу согласия Intuit и запоминает CSRF-состояние.
func (h *QuickBooksHandler) Connect(c *gin.Context) {
	id, ok := dashboardID(c, h.log)
	if !ok {
		return
	}

	csrf := quickbooks.NewCSRFState()
	if err := h.states.SaveOAuthState(c.Request.Context(), csrf, id, repository.DefaultOAuthStateTTL); err != nil {
		h.log.Errorw("Failed to save OAuth state", "dashboardID", id, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Failed to start QuickBooks authorization", h.log)
		return
	}

	authURL := h.connector.BuildAuthorizationURL(strconv.FormatInt(id, 10), csrf)
	h.log.Infow("QuickBooks authorization started", "dashboardID", id)
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

// Callback завершает OAuth: проверяет state, обменивает код и сохраняет связь.
func (h *QuickBooksHandler) Callback(c *gin.Context) {
	if oauthErr := c.Query("error"); oauthErr != "" {
		h.log.Warnw("QuickBooks authorization rejected", "error", oauthErr)
		if oauthErr == "access_denied" {
			abortWithError(c, http.StatusBadRequest, "QuickBooks access denied", h.log)
			return
		}
		abortWithError(c, http.StatusBadRequest, "QuickBooks OAuth error: "+oauthErr, h.log)
		return
	}

	var q callbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Warnw("Invalid OAuth callback parameters", "error", err)
		abortWithError(c, http.StatusBadRequest, "Missing code, state or realmId", h.log)
		return
	}

	correlationID, csrf, err := quickbooks.ParseState(q.State)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid OAuth state", h.log)
		return
	}

	ctx := c.Request.Context()
	id, err := h.states.ConsumeOAuthState(ctx, csrf)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.log.Warnw("Unknown or expired OAuth state", "correlationID", correlationID)
		abortWithError(c, http.StatusBadRequest, "Invalid OAuth state", h.log)
		return
	case err != nil:
		h.log.Errorw("Failed to consume OAuth state", "error", err)
		abortWithError(c, http.StatusInternalServerError, "Failed to verify OAuth state", h.log)
		return
	}
	if strconv.FormatInt(id, 10) != correlationID {
		h.log.Warnw("OAuth state does not match dashboard", "correlationID", correlationID, "dashboardID", id)
		abortWithError(c, http.StatusBadRequest, "Invalid OAuth state", h.log)
		return
	}

	conn, err := h.connector.Connect(ctx, id, q.Code, q.RealmID)
	if err != nil {
		h.log.Errorw("QuickBooks connection failed", "dashboardID", id, "error", err)
		if errors.Is(err, quickbooks.ErrOAuthExchangeFailed) {
			abortWithError(c, http.StatusBadGateway, "Failed to connect QuickBooks", h.log)
			return
		}
		abortWithError(c, http.StatusInternalServerError, "Failed to save QuickBooks connection", h.log)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dashboard_id": id,
		"company_name": conn.CompanyName,
		"status":       conn.Status,
	})
}

// Status возвращает состояние связи дашборда без токенов.
func (h *QuickBooksHandler) Status(c *gin.Context) {
	id, ok := dashboardID(c, h.log)
	if !ok {
		return
	}

	conn, err := h.connections.LoadConnection(c.Request.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "QuickBooks is not connected", h.log)
		return
	case err != nil:
		h.log.Errorw("Failed to load connection", "dashboardID", id, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Failed to load connection", h.log)
		return
	}

	// Токены скрыты тегами json:"-".
	c.JSON(http.StatusOK, conn)
}

// Disconnect очищает токены связи.
func (h *QuickBooksHandler) Disconnect(c *gin.Context) {
	id, ok := dashboardID(c, h.log)
	if !ok {
		return
	}

	err := h.connections.DisconnectConnection(c.Request.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "QuickBooks is not connected", h.log)
		return
	case err != nil:
		h.log.Errorw("Failed to disconnect QuickBooks", "dashboardID", id, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Failed to disconnect QuickBooks", h.log)
		return
	}

	h.log.Infow("QuickBooks disconnected", "dashboardID", id)
	c.Status(http.StatusNoContent)
}
