// Package metrics exposes Prometheus collectors for the refresh pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	CyclesTotal         *prometheus.CounterVec   // labels: kind
	CycleDuration       *prometheus.HistogramVec // labels: kind
	CyclesInFlight      prometheus.Gauge
	AcquisitionFailures *prometheus.CounterVec // labels: source
	SignalsTotal        *prometheus.CounterVec // labels: direction
	UniverseSize        prometheus.Gauge
	PublishFailures     *prometheus.CounterVec // labels: publisher

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailwatch_refresh_cycles_total",
			Help: "Completed refresh cycles by trigger kind",
		}, []string{"kind"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tailwatch_refresh_cycle_duration_seconds",
			Help:    "Wall time of a refresh cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		CyclesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tailwatch_refresh_cycles_in_flight",
			Help: "Refresh cycles currently running",
		}),
		AcquisitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailwatch_acquisition_failures_total",
			Help: "Market data calls that failed and were degraded",
		}, []string{"source"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailwatch_signals_total",
			Help: "Tail signals appended to the alert log",
		}, []string{"direction"}),
		UniverseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tailwatch_universe_size",
			Help: "Instruments in the latest universe snapshot",
		}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailwatch_publish_failures_total",
			Help: "Signal deliveries that failed",
		}, []string{"publisher"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.CyclesInFlight,
		m.AcquisitionFailures,
		m.SignalsTotal,
		m.UniverseSize,
		m.PublishFailures,
	)

	return m
}

// Handler serves the registry m was built with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
