package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the storage node. A nil *Metrics
// records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Chunk operation metrics
	ChunkOpsTotal      *prometheus.CounterVec
	ChunkOpDuration    *prometheus.HistogramVec
	ChunkBytes         *prometheus.HistogramVec
	ChecksumFailures   prometheus.Counter
	DiskFullRejections prometheus.Counter

	// Inventory metrics
	ChunksStored      prometheus.Gauge
	StorageUsedBytes  prometheus.Gauge
	HeartbeatsTotal   *prometheus.CounterVec
	RegistrationTotal *prometheus.CounterVec

	// Gossip metrics
	GossipMembersTotal prometheus.Gauge

	// System metrics
	DiskUsagePercent   prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	MemoryUsageBytes   prometheus.Gauge
	GoroutinesTotal    prometheus.Gauge
}

// NewMetrics creates metrics registered with reg, labelled with the node id.
func NewMetrics(reg prometheus.Registerer, nodeID string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests processed",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP request processing",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),

		ChunkOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "chunk_operations_total",
			Help:        "Total number of chunk operations by kind and outcome",
			ConstLabels: labels,
		}, []string{"op", "status"}),
		ChunkOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "chunk_operation_duration_seconds",
			Help:        "Histogram of chunk operation durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"op"}),
		ChunkBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "chunk_bytes",
			Help:        "Histogram of chunk payload sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(256, 2, 10), // 256B to 128KB
		}, []string{"op"}),
		ChecksumFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "checksum_failures_total",
			Help:        "Total number of chunk reads rejected by checksum validation",
			ConstLabels: labels,
		}),
		DiskFullRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "disk_full_rejections_total",
			Help:        "Total number of writes refused by the disk guard",
			ConstLabels: labels,
		}),

		ChunksStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "chunks_stored",
			Help:        "Number of chunk files on disk",
			ConstLabels: labels,
		}),
		StorageUsedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "storage_used_bytes",
			Help:        "Bytes used by chunk files",
			ConstLabels: labels,
		}),
		HeartbeatsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "heartbeats_total",
			Help:        "Heartbeats sent to the coordinator",
			ConstLabels: labels,
		}, []string{"status"}),
		RegistrationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "registrations_total",
			Help:        "Registration attempts with the coordinator",
			ConstLabels: labels,
		}, []string{"status"}),

		GossipMembersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "gossip_members_total",
			Help:        "Number of storage nodes known through gossip",
			ConstLabels: labels,
		}),

		DiskUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "disk_usage_percent",
			Help:        "Disk usage of the data volume in percent",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "disk_available_bytes",
			Help:        "Free bytes on the data volume",
			ConstLabels: labels,
		}),
		MemoryUsageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "memory_usage_bytes",
			Help:        "Heap bytes allocated by the process",
			ConstLabels: labels,
		}),
		GoroutinesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairfs",
			Subsystem:   "storage",
			Name:        "goroutines_total",
			Help:        "Number of goroutines",
			ConstLabels: labels,
		}),
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

// RecordChunkOp records a chunk operation and, for reads and writes, its payload size
func (m *Metrics) RecordChunkOp(op string, duration time.Duration, bytes int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.ChunkOpsTotal.WithLabelValues(op, status).Inc()
	m.ChunkOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	if bytes > 0 {
		m.ChunkBytes.WithLabelValues(op).Observe(float64(bytes))
	}
}

// RecordChecksumFailure counts a corrupted chunk read
func (m *Metrics) RecordChecksumFailure() {
	if m == nil {
		return
	}
	m.ChecksumFailures.Inc()
}

// RecordDiskFull counts a write refused by the disk guard
func (m *Metrics) RecordDiskFull() {
	if m == nil {
		return
	}
	m.DiskFullRejections.Inc()
}

// UpdateInventory sets the stored chunk gauges
func (m *Metrics) UpdateInventory(chunks int, bytes int64) {
	if m == nil {
		return
	}
	m.ChunksStored.Set(float64(chunks))
	m.StorageUsedBytes.Set(float64(bytes))
}

// RecordHeartbeat records a heartbeat outcome
func (m *Metrics) RecordHeartbeat(err error) {
	if m == nil {
		return
	}
	m.HeartbeatsTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordRegistration records a registration attempt
func (m *Metrics) RecordRegistration(err error) {
	if m == nil {
		return
	}
	m.RegistrationTotal.WithLabelValues(outcome(err)).Inc()
}

// UpdateGossipMembers sets the gossip member gauge
func (m *Metrics) UpdateGossipMembers(total int) {
	if m == nil {
		return
	}
	m.GossipMembersTotal.Set(float64(total))
}

// UpdateSystemStats updates system-level gauges
func (m *Metrics) UpdateSystemStats(diskUsagePercent float64, diskAvailable uint64, memoryUsage uint64, goroutines int) {
	if m == nil {
		return
	}
	m.DiskUsagePercent.Set(diskUsagePercent)
	m.DiskAvailableBytes.Set(float64(diskAvailable))
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
