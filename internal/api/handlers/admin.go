package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orchestrator"
	"github.com/delacruz/cliflow-go/internal/store"
)

// AdminHandler handles admin API requests
type AdminHandler struct {
	orch  *orchestrator.Orchestrator
	store store.Store
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(orch *orchestrator.Orchestrator, st store.Store) *AdminHandler {
	return &AdminHandler{orch: orch, store: st}
}

// ListProcesses handles GET /admin/processes?status=
func (h *AdminHandler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")

	statuses := []model.ProcessStatus{
		model.ProcessPending,
		model.ProcessInProgress,
		model.ProcessCompleted,
		model.ProcessFailed,
		model.ProcessStopped,
	}
	if statusParam != "" {
		statuses = []model.ProcessStatus{model.ParseProcessStatus(statusParam)}
	}

	var records []*model.ProcessRecord
	for _, status := range statuses {
		found, err := h.store.FindProcessRecordsByStatus(r.Context(), status)
		if err != nil {
			logger.Error().Err(err).Str("status", status.String()).Msg("failed to list process records")
			h.respondError(w, http.StatusInternalServerError, "failed to list processes")
			return
		}
		records = append(records, found...)
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"processes": records,
		"count":     len(records),
	})
}

// HealthCheck handles GET /admin/health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"store":  "disconnected",
			"error":  err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"store":  "connected",
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
