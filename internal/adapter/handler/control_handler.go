package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tailwatch/internal/application/service"
)

// ControlHandler drives the scheduler: selection, detection settings and
// manual refreshes.
type ControlHandler struct {
	scheduler *service.Scheduler
	logger    *slog.Logger
}

func NewControlHandler(scheduler *service.Scheduler, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

type selectionRequest struct {
	Symbol string `json:"symbol"`
}

type settingsRequest struct {
	Interval  *string  `json:"interval"`
	Threshold *float64 `json:"threshold"`
}

func (h *ControlHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sig, err := h.scheduler.Select(r.Context(), req.Symbol)
	if err != nil {
		h.logger.Warn("selection rejected", "symbol", req.Symbol, "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrUnknownSymbol) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":  h.scheduler.State(),
		"signal": sig,
	})
}

func (h *ControlHandler) Settings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Interval == nil && req.Threshold == nil {
		writeError(w, http.StatusBadRequest, "interval or threshold is required")
		return
	}

	sig, err := h.scheduler.ApplySettings(r.Context(), service.Settings{
		Interval:  req.Interval,
		Threshold: req.Threshold,
	})
	if err != nil {
		h.logger.Warn("settings rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":  h.scheduler.State(),
		"signal": sig,
	})
}

func (h *ControlHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.State())
}

// Refresh queues a full cycle. A request already waiting is not duplicated.
func (h *ControlHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	queued := h.scheduler.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}
