package handler

import (
	"context"
	"log/slog"
	"net/http"

	"tailwatch/internal/application/service"
	"tailwatch/internal/domain/model"
)

// SwitchFunc moves the scheduler onto the provider for mode and returns that
// provider's name.
type SwitchFunc func(ctx context.Context, mode model.DataMode) (string, error)

type ModeHandler struct {
	modeService *service.ModeService
	switchFn    SwitchFunc
	log         *slog.Logger
}

type modeResponse struct {
	Mode     string `json:"mode"`
	Provider string `json:"provider"`
	Switched bool   `json:"switched"`
}

func NewModeHandler(ms *service.ModeService, switchFn SwitchFunc, log *slog.Logger) *ModeHandler {
	return &ModeHandler{
		modeService: ms,
		switchFn:    switchFn,
		log:         log,
	}
}

func (h *ModeHandler) SwitchToTest(w http.ResponseWriter, r *http.Request) {
	h.switchMode(w, r, model.TestMode)
}

func (h *ModeHandler) SwitchToLive(w http.ResponseWriter, r *http.Request) {
	h.switchMode(w, r, model.LiveMode)
}

// Current reports the active mode and the provider feeding the scheduler.
func (h *ModeHandler) Current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modeResponse{
		Mode:     h.modeService.GetCurrentMode().String(),
		Provider: h.currentProviderName(),
	})
}

func (h *ModeHandler) switchMode(w http.ResponseWriter, r *http.Request, mode model.DataMode) {
	from := h.modeService.GetCurrentMode()
	if from == mode {
		h.log.Debug("mode unchanged", "mode", mode.String())
		writeJSON(w, http.StatusOK, modeResponse{Mode: mode.String(), Provider: h.currentProviderName()})
		return
	}

	provider, err := h.switchFn(r.Context(), mode)
	if err != nil {
		h.log.Error("switch mode failed", "from", from.String(), "to", mode.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch mode")
		return
	}

	h.log.Info("market data source switched", "from", from.String(), "to", mode.String(), "provider", provider)
	writeJSON(w, http.StatusOK, modeResponse{Mode: mode.String(), Provider: provider, Switched: true})
}

func (h *ModeHandler) currentProviderName() string {
	if p := h.modeService.CurrentProvider(); p != nil {
		return p.Name()
	}
	return ""
}
