package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rez"

// Metrics holds the Prometheus collectors for resolves. All methods are
// safe for concurrent use.
type Metrics struct {
	// SolvesTotal counts resolves by status (solved, failed, aborted, error).
	SolvesTotal *prometheus.CounterVec

	// SolveDuration measures resolve wall time by status.
	SolveDuration *prometheus.HistogramVec

	// PhasesTotal counts solver steps by outcome (ok, failed).
	PhasesTotal *prometheus.CounterVec

	// CacheRequestsTotal counts repository cache lookups by result (hit, miss).
	CacheRequestsTotal *prometheus.CounterVec

	// CacheInvalidationsTotal counts dropped cache entries.
	CacheInvalidationsTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		SolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Total resolves by status",
		}, []string{"status"}),
		SolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "solve_duration_seconds",
			Help:      "Resolve duration",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		PhasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "phases_total",
			Help:      "Solver steps by outcome",
		}, []string{"outcome"}),
		CacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "repository",
			Name:      "cache_requests_total",
			Help:      "Repository cache lookups by result",
		}, []string{"result"}),
		CacheInvalidationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "repository",
			Name:      "cache_invalidations_total",
			Help:      "Repository cache invalidations",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.SolvesTotal,
		m.SolveDuration,
		m.PhasesTotal,
		m.CacheRequestsTotal,
		m.CacheInvalidationsTotal,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSolve records a finished resolve.
func (m *Metrics) RecordSolve(status string, duration time.Duration, numSolves, numFails int) {
	m.SolvesTotal.WithLabelValues(status).Inc()
	m.SolveDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.PhasesTotal.WithLabelValues("ok").Add(float64(numSolves - numFails))
	m.PhasesTotal.WithLabelValues("failed").Add(float64(numFails))
}

// RecordCache adds cache counter deltas.
func (m *Metrics) RecordCache(hits, misses, invalidations int64) {
	if hits > 0 {
		m.CacheRequestsTotal.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		m.CacheRequestsTotal.WithLabelValues("miss").Add(float64(misses))
	}
	if invalidations > 0 {
		m.CacheInvalidationsTotal.Add(float64(invalidations))
	}
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
