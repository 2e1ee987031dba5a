package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"tailwatch/internal/application/engine"
	"tailwatch/internal/application/service"
	"tailwatch/internal/domain/model"
)

type InstrumentHandler struct {
	scheduler *service.Scheduler
	logger    *slog.Logger
}

func NewInstrumentHandler(scheduler *service.Scheduler, logger *slog.Logger) *InstrumentHandler {
	return &InstrumentHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// List is not read-only. It replaces the scheduler's stored filter with the
// one described by the query string, so later cycles and GET /state report it,
// then returns the matching instruments of the latest universe snapshot. A
// request without filter parameters resets the filter to the defaults.
func (h *InstrumentHandler) List(w http.ResponseWriter, r *http.Request) {
	spec := parseFilterSpec(r.URL.Query())
	h.scheduler.SetFilter(spec)

	instruments, total := h.scheduler.Filtered()
	if instruments == nil {
		instruments = []model.Instrument{}
	}

	h.logger.Debug("instruments filtered", "search", spec.SearchTerm, "quote", spec.QuoteAsset, "matched", len(instruments), "total", total)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(instruments),
		"total":       total,
		"filter":      spec,
		"instruments": instruments,
	})
}

// Missing values fall back to the defaults; unparseable numbers disable the
// corresponding dimension.
func parseFilterSpec(q url.Values) model.FilterSpec {
	spec := model.DefaultFilterSpec()
	spec.SearchTerm = q.Get("search")
	if quote := q.Get("quote"); quote != "" {
		spec.QuoteAsset = quote
	}
	if op := q.Get("price_op"); op != "" {
		spec.PriceOp = model.Comparator(op)
	}
	if op := q.Get("volume_op"); op != "" {
		spec.VolumeOp = model.Comparator(op)
	}
	spec.PriceValue = engine.ParseFilterValue(q.Get("price"))
	spec.VolumeValue = engine.ParseFilterValue(q.Get("volume"))
	return spec
}
