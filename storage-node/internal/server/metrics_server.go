package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/storage-node/internal/health"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
)

// MetricsServer serves Prometheus metrics and refreshes the system gauges
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	disk       health.DiskUsageProvider
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port     int
	Path     string
	Interval time.Duration
	Gatherer prometheus.Gatherer
}

// NewMetricsServer creates a new metrics server. disk may be nil.
func NewMetricsServer(cfg *MetricsServerConfig, m *metrics.Metrics, disk health.DiskUsageProvider, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:  m,
		disk:     disk,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start starts the metrics server
func (s *MetricsServer) Start() error {
	s.logger.Info("Starting metrics server", zap.String("addr", s.httpServer.Addr))

	s.updateSystemMetrics()
	go s.collectSystemMetrics()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")

	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return nil
}

func (s *MetricsServer) collectSystemMetrics() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateSystemMetrics()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MetricsServer) updateSystemMetrics() {
	var diskPercent float64
	var diskAvailable uint64
	if s.disk != nil {
		usage := s.disk.GetDiskUsage()
		if usage.Err != nil {
			s.logger.Warn("Failed to get disk stats", zap.Error(usage.Err))
		}
		diskPercent = usage.UsagePercent
		diskAvailable = usage.AvailableBytes
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.metrics.UpdateSystemStats(diskPercent, diskAvailable, memStats.Alloc, runtime.NumGoroutine())
}
