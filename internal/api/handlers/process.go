package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/orcherr"
	"github.com/delacruz/cliflow-go/internal/orchestrator"
)

// ProcessHandler handles process-related HTTP requests
type ProcessHandler struct {
	orch *orchestrator.Orchestrator
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(orch *orchestrator.Orchestrator) *ProcessHandler {
	return &ProcessHandler{orch: orch}
}

// StartProcessRequest is the POST /api/v1/processes body
type StartProcessRequest struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	InputData map[string]any `json:"input_data,omitempty"`
}

// StartProcessResponse is returned on a successful start
type StartProcessResponse struct {
	ID string `json:"id"`
}

// Start handles POST /api/v1/processes
func (h *ProcessHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type == "" {
		h.respondError(w, http.StatusBadRequest, "process type is required")
		return
	}

	var (
		id  string
		err error
	)
	if req.ID != "" {
		id, err = h.orch.StartProcessWithID(r.Context(), req.ID, req.Type, req.InputData)
	} else {
		id, err = h.orch.StartProcess(r.Context(), req.Type, req.InputData)
	}
	if err != nil {
		h.respondOrchErr(w, err, "failed to start process")
		return
	}

	logger.Info().Str("process_id", id).Str("type", req.Type).Msg("process started")
	h.respondJSON(w, http.StatusCreated, StartProcessResponse{ID: id})
}

// Get handles GET /api/v1/processes/{processID}
func (h *ProcessHandler) Get(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	if processID == "" {
		h.respondError(w, http.StatusBadRequest, "process ID is required")
		return
	}

	record, err := h.orch.GetProcessRecord(r.Context(), processID)
	if err != nil {
		h.respondOrchErr(w, err, "failed to get process")
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

// Tasks handles GET /api/v1/processes/{processID}/tasks
func (h *ProcessHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	if processID == "" {
		h.respondError(w, http.StatusBadRequest, "process ID is required")
		return
	}

	tasks, err := h.orch.GetProcessTasks(r.Context(), processID)
	if err != nil {
		h.respondOrchErr(w, err, "failed to get process tasks")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// Stop handles POST /api/v1/processes/{processID}/stop
func (h *ProcessHandler) Stop(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	if processID == "" {
		h.respondError(w, http.StatusBadRequest, "process ID is required")
		return
	}

	if err := h.orch.StopProcess(r.Context(), processID); err != nil {
		h.respondOrchErr(w, err, "failed to stop process")
		return
	}

	logger.Info().Str("process_id", processID).Msg("process stopped")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "process stopped",
		"process_id": processID,
	})
}

func (h *ProcessHandler) respondOrchErr(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, orcherr.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "process not found")
	case errors.Is(err, orcherr.ErrAlreadyRunning):
		h.respondError(w, http.StatusConflict, "process already running")
	case errors.Is(err, orcherr.ErrValidation):
		h.respondError(w, http.StatusConflict, "invalid process state transition")
	default:
		logger.Error().Err(err).Msg(fallback)
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *ProcessHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *ProcessHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
