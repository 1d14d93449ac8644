package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Membership metrics
	StorageNodesHealthy prometheus.Gauge
	StorageNodesTotal   prometheus.Gauge
	HeartbeatsTotal     prometheus.Counter

	// Metadata metrics
	BlobsTotal       prometheus.Gauge
	PlansTotal       *prometheus.CounterVec
	SnapshotSaves    *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram

	// Integrity monitor metrics
	PassRuns       *prometheus.CounterVec
	PassDuration   *prometheus.HistogramVec
	PassActions    *prometheus.CounterVec
	ReplicaCopies  *prometheus.CounterVec
	ProbeCacheHits *prometheus.CounterVec
}

// NewMetrics creates metrics registered with reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		StorageNodesHealthy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_storage_nodes_healthy",
				Help: "Number of storage nodes within the heartbeat timeout",
			},
		),

		StorageNodesTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_storage_nodes_total",
				Help: "Number of storage nodes ever registered",
			},
		),

		HeartbeatsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coordinator_heartbeats_total",
				Help: "Total number of heartbeats received",
			},
		),

		BlobsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_blobs_total",
				Help: "Number of blobs with metadata",
			},
		),

		PlansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_upload_plans_total",
				Help: "Total number of upload placement plans",
			},
			[]string{"status"},
		),

		SnapshotSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_snapshot_saves_total",
				Help: "Total number of metadata snapshot saves",
			},
			[]string{"status"},
		),

		SnapshotDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coordinator_snapshot_save_duration_seconds",
				Help:    "Duration of metadata snapshot saves",
				Buckets: prometheus.DefBuckets,
			},
		),

		PassRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_integrity_pass_runs_total",
				Help: "Total number of integrity pass runs",
			},
			[]string{"pass", "outcome"},
		),

		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_integrity_pass_duration_seconds",
				Help:    "Duration of integrity passes",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"pass"},
		),

		PassActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_integrity_actions_total",
				Help: "Total number of integrity actions by kind",
			},
			[]string{"pass", "action"},
		),

		ReplicaCopies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_replica_copies_total",
				Help: "Total number of chunk copies between storage nodes",
			},
			[]string{"status"},
		),

		ProbeCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_probe_cache_lookups_total",
				Help: "Existence probe cache lookups",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest records a request metric
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// UpdateStorageNodes updates the node gauges
func (m *Metrics) UpdateStorageNodes(healthy, total int) {
	if m == nil {
		return
	}
	m.StorageNodesHealthy.Set(float64(healthy))
	m.StorageNodesTotal.Set(float64(total))
}

// RecordHeartbeat records a received heartbeat
func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.HeartbeatsTotal.Inc()
}

// UpdateBlobs updates the blob gauge
func (m *Metrics) UpdateBlobs(count int) {
	if m == nil {
		return
	}
	m.BlobsTotal.Set(float64(count))
}

// RecordPlan records an upload plan outcome
func (m *Metrics) RecordPlan(status string) {
	if m == nil {
		return
	}
	m.PlansTotal.WithLabelValues(status).Inc()
}

// RecordSnapshotSave records a snapshot persist
func (m *Metrics) RecordSnapshotSave(duration time.Duration, blobs int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.SnapshotSaves.WithLabelValues(status).Inc()
	m.SnapshotDuration.Observe(duration.Seconds())
	m.BlobsTotal.Set(float64(blobs))
}

// RecordPass records an integrity pass run
func (m *Metrics) RecordPass(pass, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PassRuns.WithLabelValues(pass, outcome).Inc()
	if outcome != "skipped" {
		m.PassDuration.WithLabelValues(pass).Observe(duration.Seconds())
	}
}

// RecordPassAction adds n integrity actions of a kind
func (m *Metrics) RecordPassAction(pass, action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.PassActions.WithLabelValues(pass, action).Add(float64(n))
}

// RecordReplicaCopy records a chunk copy between nodes
func (m *Metrics) RecordReplicaCopy(status string) {
	if m == nil {
		return
	}
	m.ReplicaCopies.WithLabelValues(status).Inc()
}

// RecordProbeCache records a probe cache lookup
func (m *Metrics) RecordProbeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ProbeCacheHits.WithLabelValues(result).Inc()
}
