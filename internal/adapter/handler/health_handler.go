package handler

import (
	"context"
	"log/slog"
	"net/http"

	"tailwatch/internal/application/service"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage   pinger
	cache     pinger
	scheduler *service.Scheduler
	logger    *slog.Logger
}

// NewHealthHandler accepts nil storage or cache; a disabled backend is
// reported as such and does not degrade the status.
func NewHealthHandler(storage, cache pinger, scheduler *service.Scheduler, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage:   storage,
		cache:     cache,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	overallStatus := "healthy"

	check := func(name string, p pinger) string {
		if p == nil {
			return "disabled"
		}
		if err := p.Ping(r.Context()); err != nil {
			overallStatus = "degraded"
			h.logger.Warn(name+" health check failed", "error", err)
			return "unhealthy"
		}
		return "healthy"
	}

	checks := map[string]string{
		"database": check("database", h.storage),
		"redis":    check("redis", h.cache),
	}

	response := map[string]interface{}{
		"status": overallStatus,
		"checks": checks,
	}
	if h.scheduler != nil {
		response["scheduler"] = h.scheduler.Phase().String()
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}
