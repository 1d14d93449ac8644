// Package server provides the HTTP server implementation for the gateway.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/gateway/internal/config"
	"github.com/devrev/pairfs/gateway/internal/handler"
	"github.com/devrev/pairfs/gateway/internal/health"
	"github.com/devrev/pairfs/gateway/internal/metrics"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/middleware"
)

// Services bundles what the HTTP layer serves.
type Services struct {
	Transfer handler.BlobTransfer
	Catalog  handler.Catalog
	Health   *health.HealthCheck
	Metrics  *metrics.Metrics
}

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	health       *health.HealthCheck
	metrics      *metrics.Metrics
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server with its routes registered.
func NewServer(cfg *config.Config, services Services, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)

	s := &Server{
		router:       router,
		handlers:     handler.NewHandlers(services.Transfer, services.Catalog, errorHandler, services.Metrics, logger, cfg.Upload.MaxBytes),
		health:       services.Health,
		metrics:      services.Metrics,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		metrics.MetricsMiddleware(s.metrics),
		middleware.CORS([]string{"*"}),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}
	middlewareChain = append(middlewareChain, middleware.Timeout(s.cfg.Server.RequestTimeout))

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	if s.health != nil {
		s.router.HandleFunc("/health/live", s.health.LivenessHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", s.health.ReadinessHandler).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/blobs", s.handlers.UploadBlob).Methods(http.MethodPost)
	v1.HandleFunc("/blobs", s.handlers.ListBlobs).Methods(http.MethodGet)
	v1.HandleFunc("/blobs/{blobId}", s.handlers.DownloadBlob).Methods(http.MethodGet)
	v1.HandleFunc("/blobs/{blobId}", s.handlers.DeleteBlob).Methods(http.MethodDelete)
	v1.HandleFunc("/blobs/{blobId}/metadata", s.handlers.GetMetadata).Methods(http.MethodGet)
	v1.HandleFunc("/status", s.handlers.Status).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.KindNotFound, "endpoint not found", r.Header.Get("X-Request-ID"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.KindBadRequest, "method not allowed", r.Header.Get("X-Request-ID"))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.Int("port", s.cfg.Server.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
