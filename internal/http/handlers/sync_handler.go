package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Syncer собирает снимок дашборда. nil означает, что нужен запасной источник.
type Syncer interface {
	Sync(ctx context.Context, dashboardID int64) *domain.Snapshot
}

// SyncHandler отдает свежий финансовый снимок дашборда.
type SyncHandler struct {
	syncer Syncer
	log    *logger.Logger
}

func NewSyncHandler(syncer Syncer, log *logger.Logger) *SyncHandler {
	return &SyncHandler{syncer: syncer, log: log.With("component", "sync_handler")}
}

// Sync 200 со снимком или 204, если синхронизация не дала данных.
func (h *SyncHandler) Sync(c *gin.Context) {
	id, ok := dashboardID(c, h.log)
	if !ok {
		return
	}

	snapshot := h.syncer.Sync(c.Request.Context(), id)
	if snapshot == nil {
		h.log.Debugw("No snapshot, caller falls back to stored data", "dashboardID", id)
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
