package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/pairfs/coordinator/internal/config"
	"github.com/devrev/pairfs/coordinator/internal/health"
	"github.com/devrev/pairfs/coordinator/internal/metrics"
	"github.com/devrev/pairfs/coordinator/internal/server"
	"github.com/devrev/pairfs/coordinator/internal/service"
	"github.com/devrev/pairfs/coordinator/internal/store"
	"github.com/devrev/pairfs/pkg/chunkclient"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting pairfs coordinator",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("port", cfg.Server.Port),
		zap.Int("chunk_size", cfg.Cluster.ChunkSize),
		zap.Int("replication_factor", cfg.Cluster.ReplicationFactor),
		zap.Duration("heartbeat_timeout", cfg.Cluster.HeartbeatTimeout),
		zap.String("snapshot_backend", cfg.Snapshot.Backend))

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	snapshots, err := store.NewSnapshotStore(cfg.Snapshot, cfg.Server.NodeID, logger)
	if err != nil {
		logger.Fatal("Failed to open snapshot backend", zap.Error(err))
	}
	defer snapshots.Close()

	metadataStore, err := store.NewSnapshotMetadataStore(context.Background(), snapshots, m, logger)
	if err != nil {
		logger.Fatal("Failed to initialize metadata store", zap.Error(err))
	}

	chunks := chunkclient.New(nil, cfg.StorageNodes.RequestTimeout)
	probes := store.NewProbeCache(cfg.Integrity.ProbeCacheTTL)
	defer probes.Stop()

	membership := service.NewMembershipService(cfg.Cluster.HeartbeatTimeout, m, logger)
	placement := service.NewPlacementService(cfg.Cluster.ReplicationFactor, cfg.Cluster.ChunkSize)
	blobService := service.NewBlobService(metadataStore, membership, placement, cfg.Cluster.ChunkSize, cfg.Cluster.ReplicationFactor, m, logger)
	monitor := service.NewIntegrityMonitor(metadataStore, membership, placement, chunks, probes, cfg.Integrity, cfg.Cluster.ReplicationFactor, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Integrity.Enabled {
		monitor.Start(ctx)
	} else {
		logger.Warn("Integrity monitor disabled; passes run only on demand")
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(cfg, server.Services{
		Membership: membership,
		Blobs:      blobService,
		Monitor:    monitor,
		Health:     health.NewHealthChecker(metadataStore, membership, logger),
		Metrics:    m,
	}, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	cancel()
	monitor.Stop()

	logger.Info("Coordinator stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
