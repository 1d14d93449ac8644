package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/pairfs/storage-node/internal/client"
	"github.com/devrev/pairfs/storage-node/internal/config"
	"github.com/devrev/pairfs/storage-node/internal/health"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/model"
	"github.com/devrev/pairfs/storage-node/internal/server"
	"github.com/devrev/pairfs/storage-node/internal/service"
	"github.com/devrev/pairfs/storage-node/internal/storage/chunkstore"
	"github.com/devrev/pairfs/storage-node/internal/storage/diskmanager"
	"github.com/devrev/pairfs/storage-node/internal/validation"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting pairfs storage node",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("advertise_url", cfg.Server.AdvertiseURL),
		zap.Int("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Storage.DataDir))

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, cfg.Server.NodeID)

	store, err := chunkstore.Open(cfg.Storage.DataDir, cfg.Storage.SyncWrites, logger)
	if err != nil {
		logger.Fatal("Failed to open chunk store", zap.Error(err))
	}

	disk, err := diskmanager.NewDiskManager(&diskmanager.DiskManagerConfig{
		DataDir:                 store.Dir(),
		CheckInterval:           cfg.Disk.CheckInterval,
		WarningThreshold:        cfg.Disk.WarningThreshold,
		CircuitBreakerThreshold: cfg.Disk.CircuitBreakerThreshold,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize disk manager", zap.Error(err))
	}

	chunks := service.NewChunkService(
		cfg.Server.NodeID,
		store,
		validation.NewValidator(cfg.Storage.MaxChunkBytes),
		disk,
		m,
		logger,
	)
	if _, err := chunks.Stats(context.Background()); err != nil {
		logger.Warn("Failed to compute initial inventory", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gossip *service.GossipService
	if cfg.Gossip.Enabled {
		gossip, err = service.NewGossipService(&service.GossipConfig{
			BindAddr:       cfg.Gossip.BindAddr,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, model.NodeMeta{NodeID: cfg.Server.NodeID, URL: cfg.Server.AdvertiseURL}, m, logger)
		if err != nil {
			logger.Fatal("Failed to start gossip", zap.Error(err))
		}
		chunks.SetPeerSource(gossip)
		go gossip.Run(ctx, chunks, disk, cfg.Disk.CheckInterval)
	}

	var heartbeat *service.HeartbeatService
	if cfg.Coordinator.Enabled {
		coordinator := client.NewCoordinatorClient(cfg.Coordinator.URL, nil, cfg.Coordinator.RequestTimeout, logger)
		heartbeat = service.NewHeartbeatService(service.HeartbeatConfig{
			NodeID:     cfg.Server.NodeID,
			URL:        cfg.Server.AdvertiseURL,
			Interval:   cfg.Coordinator.HeartbeatInterval,
			MaxRetries: cfg.Coordinator.MaxRetries,
			MaxBackoff: cfg.Coordinator.MaxBackoff,
		}, coordinator, chunks, disk, m, logger)
		heartbeat.Start(ctx)
	} else {
		logger.Warn("Coordinator disabled; node will not register")
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, m, disk, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}

	hc := health.NewHealthChecker(cfg.Server.NodeID, store.Dir(), disk, logger)
	srv := server.NewServer(cfg, chunks, hc, m, logger)

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
	hc.SetDraining(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	if heartbeat != nil {
		heartbeat.Stop()
	}
	cancel()
	if gossip != nil {
		if err := gossip.Shutdown(); err != nil {
			logger.Warn("Gossip shutdown failed", zap.Error(err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Storage node stopped")
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
