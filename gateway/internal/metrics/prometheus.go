// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	responseSize     *prometheus.HistogramVec
	transfersTotal   *prometheus.CounterVec
	transferBytes    *prometheus.HistogramVec
	replicaWrites    *prometheus.CounterVec
	healthStatus     prometheus.Gauge
}

// NewMetrics creates metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "route"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_blob_transfers_total",
				Help: "Blob uploads and downloads by outcome",
			},
			[]string{"direction", "outcome"},
		),
		transferBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_blob_transfer_bytes",
				Help:    "Size of transferred blobs in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"direction"},
		),
		replicaWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_replica_writes_total",
				Help: "Replica writes issued during uploads by outcome",
			},
			[]string{"outcome"},
		),
		healthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_health_status",
				Help: "Coordinator reachability as seen by the gateway (1 = healthy, 0 = unhealthy)",
			},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUpload records an upload and its replica write outcomes.
func (m *Metrics) RecordUpload(size int64, writes, failures int, err error) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues("upload", outcome(err)).Inc()
	if err != nil {
		return
	}
	m.transferBytes.WithLabelValues("upload").Observe(float64(size))
	m.replicaWrites.WithLabelValues("success").Add(float64(writes))
	m.replicaWrites.WithLabelValues("failure").Add(float64(failures))
}

// RecordDownload records a download.
func (m *Metrics) RecordDownload(size int, err error) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues("download", outcome(err)).Inc()
	if err == nil {
		m.transferBytes.WithLabelValues("download").Observe(float64(size))
	}
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("Starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// MetricsMiddleware records request counts, latency, response size and in-flight requests.
// Routes are labelled by their template so blob ids do not create new series.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
			m.responseSize.WithLabelValues(r.Method, route).Observe(float64(rw.size))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture metrics.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}
