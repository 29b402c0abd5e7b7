package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prudhvinik1/episync/internal/services"
)

// SyncHandler exposes manual sync triggers and sync status.
type SyncHandler struct {
	sync   *services.SyncService
	logger *slog.Logger
}

func NewSyncHandler(sync *services.SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, logger: logger}
}

type SyncStatusResponse struct {
	State    services.SyncState `json:"state"`
	LastSync *time.Time         `json:"last_sync"`
}

// Status reports whether a sync is running and when the last one finished.
// GET /api/sync
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.sync.LastSync(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	resp := SyncStatusResponse{State: h.sync.State()}
	if !state.NeverSynced() {
		resp.LastSync = &state.LastSync
	}
	respondJSON(w, http.StatusOK, resp)
}

// Trigger runs a sync now.
// POST /api/sync
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Sync(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
