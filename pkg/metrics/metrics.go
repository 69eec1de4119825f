// Package metrics defines the Prometheus collectors for the job control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all collectors. Construct once per process with New and
// share the instance; collectors register on the given registerer.
type Metrics struct {
	// Job metrics
	jobsSubmitted *prometheus.CounterVec
	jobsActive    prometheus.Gauge
	jobsFinished  *prometheus.CounterVec

	// Bus metrics
	chunksPublished  *prometheus.CounterVec
	busEventsDropped prometheus.Counter

	// WebSocket metrics
	wsConnectionsTotal  prometheus.Counter
	wsConnectionsActive prometheus.Gauge
}

// New creates and registers all collectors. Pass
// prometheus.DefaultRegisterer in main; tests use a fresh registry so
// repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		jobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobhub_jobs_submitted_total",
			Help: "Total number of jobs submitted, by kind",
		}, []string{"kind"}),
		jobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobhub_jobs_active",
			Help: "Number of jobs currently held in the registry",
		}),
		jobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobhub_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status, by kind and outcome",
		}, []string{"kind", "outcome"}),
		chunksPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobhub_io_chunks_published_total",
			Help: "Total number of stdout/stderr chunks published to the bus",
		}, []string{"io_type"}),
		busEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobhub_bus_events_dropped_total",
			Help: "Total number of bus events dropped for lagging subscribers",
		}),
		wsConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobhub_ws_connections_total",
			Help: "Total number of accepted WebSocket connections",
		}),
		wsConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobhub_ws_connections_active",
			Help: "Number of currently open WebSocket connections",
		}),
	}
}

// JobSubmitted records a new job of the given kind.
func (m *Metrics) JobSubmitted(kind string) {
	m.jobsSubmitted.WithLabelValues(kind).Inc()
	m.jobsActive.Inc()
}

// JobFinished records a terminal status for a job of the given kind.
func (m *Metrics) JobFinished(kind, outcome string) {
	m.jobsFinished.WithLabelValues(kind, outcome).Inc()
}

// JobEvicted records removal of a job record from the registry.
func (m *Metrics) JobEvicted() {
	m.jobsActive.Dec()
}

// ChunkPublished records one output chunk reaching the bus.
func (m *Metrics) ChunkPublished(ioType string) {
	m.chunksPublished.WithLabelValues(ioType).Inc()
}

// EventDropped records a bus event dropped for a lagging subscriber.
func (m *Metrics) EventDropped() {
	m.busEventsDropped.Inc()
}

// WSOpened records a new WebSocket connection.
func (m *Metrics) WSOpened() {
	m.wsConnectionsTotal.Inc()
	m.wsConnectionsActive.Inc()
}

// WSClosed records a WebSocket connection ending.
func (m *Metrics) WSClosed() {
	m.wsConnectionsActive.Dec()
}
