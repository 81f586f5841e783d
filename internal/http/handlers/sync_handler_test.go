package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSyncer struct {
	snapshot *domain.Snapshot
	lastID   int64
}

func (s *stubSyncer) Sync(_ context.Context, dashboardID int64) *domain.Snapshot {
	s.lastID = dashboardID
	return s.snapshot
}

func TestSyncHandler_ReturnsSnapshot(t *testing.T) {
	syncer := &stubSyncer{snapshot: domain.NewSnapshot(2500, domain.NewProfitLoss(1000, 600), 300, 750, time.Now().UTC())}
	router := newTestRouter()
	router.POST("/dashboards/:dashboard_id/sync", NewSyncHandler(syncer, logger.NewNop()).Sync)

	w := serve(router, http.MethodPost, "/dashboards/12/sync", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(12), syncer.lastID)

	var got domain.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2500.0, got.CashBalance)
	assert.Equal(t, 400.0, got.Profit)
	assert.Equal(t, 40.0, got.Margin)
}

func TestSyncHandler_NoSnapshot(t *testing.T) {
	router := newTestRouter()
	router.POST("/dashboards/:dashboard_id/sync", NewSyncHandler(&stubSyncer{}, logger.NewNop()).Sync)

	w := serve(router, http.MethodPost, "/dashboards/12/sync", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
