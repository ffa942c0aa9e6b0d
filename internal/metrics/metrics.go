package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics exposed by an executor.
type Metrics struct {
	// Channel metrics
	ChannelDepth    *prometheus.GaugeVec
	ChannelCapacity *prometheus.GaugeVec
	ChannelOutcomes *prometheus.CounterVec

	// Router metrics
	RouterDispatched *prometheus.CounterVec
	RouterErrors     *prometheus.CounterVec
	RouterSources    *prometheus.GaugeVec

	// Manifold metrics
	ManifoldRoutedBytes  *prometheus.CounterVec
	ManifoldReconciled   prometheus.Counter
	ManifoldOpenCircuits prometheus.Gauge

	// Control-plane metrics
	ControlPlaneNonce     prometheus.Gauge
	ResourceStateRequested *prometheus.GaugeVec
	ResourceStateActual    *prometheus.GaugeVec

	// Pipeline manager metrics
	SegmentsStarted prometheus.Counter
	SegmentsStopped prometheus.Counter
	SegmentsKilled  prometheus.Counter

	// Admin HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector with all series registered
// against the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		ChannelDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srf_channel_depth",
				Help: "Current number of buffered items in a channel",
			},
			[]string{"channel"},
		),
		ChannelCapacity: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srf_channel_capacity",
				Help: "Fixed queue capacity of a channel",
			},
			[]string{"channel"},
		),
		ChannelOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srf_channel_outcomes_total",
				Help: "Outcomes of channel read/write operations by status",
			},
			[]string{"channel", "op", "status"},
		),

		RouterDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srf_router_dispatched_total",
				Help: "Total items dispatched by a router to a downstream key",
			},
			[]string{"router", "key"},
		),
		RouterErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srf_router_errors_total",
				Help: "Total dispatch errors observed by a router for a key",
			},
			[]string{"router", "key"},
		),
		RouterSources: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srf_router_sources",
				Help: "Current number of bound source keys for a dynamic router",
			},
			[]string{"router"},
		),

		ManifoldRoutedBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srf_manifold_routed_bytes_total",
				Help: "Total bytes routed through a manifold by destination",
			},
			[]string{"manifold", "destination"},
		),
		ManifoldReconciled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "srf_manifold_reconciliations_total",
				Help: "Total number of manifold endpoint-set reconciliations",
			},
		),
		ManifoldOpenCircuits: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "srf_manifold_open_circuits",
				Help: "Current number of remote manifold endpoints with an open circuit breaker",
			},
		),

		ControlPlaneNonce: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "srf_control_plane_nonce",
				Help: "Current nonce of the last applied control-plane state",
			},
		),
		ResourceStateRequested: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srf_resource_state_requested",
				Help: "Requested resource state ordinal by entity kind and id",
			},
			[]string{"kind", "id"},
		),
		ResourceStateActual: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srf_resource_state_actual",
				Help: "Actual resource state ordinal by entity kind and id",
			},
			[]string{"kind", "id"},
		),

		SegmentsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "srf_pipeline_segments_started_total",
				Help: "Total pipeline segments started by the pipeline manager",
			},
		),
		SegmentsStopped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "srf_pipeline_segments_stopped_total",
				Help: "Total pipeline segments cooperatively stopped",
			},
		),
		SegmentsKilled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "srf_pipeline_segments_killed_total",
				Help: "Total pipeline segments forcibly killed",
			},
		),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srf_admin_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "srf_admin_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "srf_uptime_seconds",
				Help: "Executor process uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordChannelOutcome records the result of a channel read or write.
func (m *Metrics) RecordChannelOutcome(channel, op, status string) {
	m.ChannelOutcomes.WithLabelValues(channel, op, status).Inc()
}

// SetChannelLevels updates a channel's depth/capacity gauges.
func (m *Metrics) SetChannelLevels(channel string, depth, capacity int) {
	m.ChannelDepth.WithLabelValues(channel).Set(float64(depth))
	m.ChannelCapacity.WithLabelValues(channel).Set(float64(capacity))
}

// RecordRouterDispatch records a successful dispatch to a key.
func (m *Metrics) RecordRouterDispatch(router, key string) {
	m.RouterDispatched.WithLabelValues(router, key).Inc()
}

// RecordRouterError records a dispatch failure for a key.
func (m *Metrics) RecordRouterError(router, key string) {
	m.RouterErrors.WithLabelValues(router, key).Inc()
}

// SetRouterSources updates the bound-source-key gauge for a dynamic router.
func (m *Metrics) SetRouterSources(router string, count int) {
	m.RouterSources.WithLabelValues(router).Set(float64(count))
}

// RecordManifoldRoutedBytes records bytes routed to a destination.
func (m *Metrics) RecordManifoldRoutedBytes(manifold, destination string, n int) {
	m.ManifoldRoutedBytes.WithLabelValues(manifold, destination).Add(float64(n))
}

// IncManifoldReconciled records one endpoint-set reconciliation.
func (m *Metrics) IncManifoldReconciled() {
	m.ManifoldReconciled.Inc()
}

// SetManifoldOpenCircuits updates the open-circuit gauge.
func (m *Metrics) SetManifoldOpenCircuits(count int) {
	m.ManifoldOpenCircuits.Set(float64(count))
}

// SetControlPlaneNonce updates the last-applied-nonce gauge.
func (m *Metrics) SetControlPlaneNonce(nonce uint64) {
	m.ControlPlaneNonce.Set(float64(nonce))
}

// SetResourceState updates the requested/actual state ordinal gauges for
// an entity.
func (m *Metrics) SetResourceState(kind, id string, requested, actual int) {
	m.ResourceStateRequested.WithLabelValues(kind, id).Set(float64(requested))
	m.ResourceStateActual.WithLabelValues(kind, id).Set(float64(actual))
}

// IncSegmentsStarted records one segment start.
func (m *Metrics) IncSegmentsStarted() { m.SegmentsStarted.Inc() }

// IncSegmentsStopped records one cooperative segment stop.
func (m *Metrics) IncSegmentsStopped() { m.SegmentsStopped.Inc() }

// IncSegmentsKilled records one forced segment kill.
func (m *Metrics) IncSegmentsKilled() { m.SegmentsKilled.Inc() }

// RecordAdminRequest records one admin HTTP request.
func (m *Metrics) RecordAdminRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
