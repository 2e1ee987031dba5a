package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tailwatch/internal/application/service"
	"tailwatch/internal/application/usecase"
	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
)

type CandleHandler struct {
	scheduler *service.Scheduler
	useCase   *usecase.CandleUseCase
	logger    *slog.Logger
}

func NewCandleHandler(scheduler *service.Scheduler, useCase *usecase.CandleUseCase, logger *slog.Logger) *CandleHandler {
	return &CandleHandler{
		scheduler: scheduler,
		useCase:   useCase,
		logger:    logger,
	}
}

// Current returns the window of the selected instrument as of the last cycle.
func (h *CandleHandler) Current(w http.ResponseWriter, r *http.Request) {
	window := h.scheduler.Candles()
	if window.Candles == nil {
		window.Candles = []model.Candle{}
	}
	writeJSON(w, http.StatusOK, window)
}

// BySymbol looks up any symbol without changing the selection.
func (h *CandleHandler) BySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = h.scheduler.State().Interval
	}
	if !service.ValidInterval(interval) {
		writeError(w, http.StatusBadRequest, "unsupported interval: "+interval)
		return
	}

	window, cached, err := h.useCase.GetCandles(r.Context(), symbol, interval)
	if err != nil {
		h.logger.Error("failed to get candles", "symbol", symbol, "interval", interval, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, port.ErrAcquisition) {
			status = http.StatusBadGateway
		}
		writeError(w, status, "failed to get candles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   window.Symbol,
		"interval": window.Interval,
		"cached":   cached,
		"candles":  window.Candles,
	})
}
