// Package main provides the entry point for the pairfs gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/pairfs/gateway/internal/config"
	"github.com/devrev/pairfs/gateway/internal/health"
	"github.com/devrev/pairfs/gateway/internal/metrics"
	"github.com/devrev/pairfs/gateway/internal/server"
	"github.com/devrev/pairfs/pkg/blobclient"
	"github.com/devrev/pairfs/pkg/chunkclient"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting pairfs gateway",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("coordinator_url", cfg.Coordinator.URL),
		zap.Int64("max_upload_bytes", cfg.Upload.MaxBytes),
		zap.Int("parallelism", cfg.Upload.Parallelism))

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	coordinator := blobclient.NewCoordinatorClient(cfg.Coordinator.URL, logger,
		blobclient.WithHTTPClient(nil, cfg.Coordinator.Timeout),
		blobclient.WithRetries(cfg.Coordinator.MaxRetries, cfg.Coordinator.RetryBackoff),
	)
	chunks := chunkclient.New(nil, cfg.StorageNodes.RequestTimeout)
	orchestrator := blobclient.NewOrchestrator(coordinator, chunks, cfg.Upload.Parallelism, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := health.NewHealthCheck(coordinator, m, logger)
	hc.Start(ctx)

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := server.NewServer(cfg, server.Services{
		Transfer: orchestrator,
		Catalog:  coordinator,
		Health:   hc,
		Metrics:  m,
	}, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Initiating graceful shutdown")
	m.SetHealthStatus(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("Gateway shutdown complete")
}

// initLogger builds the logger from config, falling back to a production logger.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
