package handler

import (
	"net/http"

	"tailwatch/internal/application/service"
)

type AlertHandler struct {
	alerts *service.AlertLog
}

func NewAlertHandler(alerts *service.AlertLog) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  h.alerts.Count(),
		"alerts": h.alerts.Signals(),
	})
}
