// Package server wires the coordinator's HTTP routes and middleware.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
	"github.com/devrev/pairfs/coordinator/internal/handler"
	"github.com/devrev/pairfs/coordinator/internal/health"
	"github.com/devrev/pairfs/coordinator/internal/metrics"
	"github.com/devrev/pairfs/coordinator/internal/service"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/middleware"
)

// Services bundles what the HTTP layer serves.
type Services struct {
	Membership *service.MembershipService
	Blobs      *service.BlobService
	Monitor    *service.IntegrityMonitor
	Health     *health.HealthChecker
	Metrics    *metrics.Metrics
}

// Server represents the coordinator HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	errorHandler *apierrors.Handler
	services     Services
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates the server and registers its routes.
func NewServer(cfg *config.Config, services Services, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:       router,
		errorHandler: apierrors.NewHandler(logger),
		services:     services,
		logger:       logger,
		cfg:          cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
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
		middleware.Metrics(s.services.Metrics),
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

	if s.services.Health != nil {
		s.router.HandleFunc("/health/live", s.services.Health.LivenessHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", s.services.Health.ReadinessHandler).Methods(http.MethodGet)
	}

	blobs := handler.NewBlobHandler(s.services.Blobs, s.cfg.Cluster.ReplicationFactor, s.errorHandler, s.logger)
	s.router.HandleFunc("/plan-upload", blobs.PlanUpload).Methods(http.MethodPost)
	s.router.HandleFunc("/metadata/{blobId}", blobs.GetMetadata).Methods(http.MethodGet)
	s.router.HandleFunc("/blobs", blobs.ListBlobs).Methods(http.MethodGet)
	s.router.HandleFunc("/blob/{blobId}", blobs.DeleteBlob).Methods(http.MethodDelete)
	s.router.HandleFunc("/status", blobs.Status).Methods(http.MethodGet)

	nodes := handler.NewNodeHandler(s.services.Membership, s.errorHandler, s.logger)
	s.router.HandleFunc("/register", nodes.Register).Methods(http.MethodPost)
	s.router.HandleFunc("/heartbeat", nodes.Heartbeat).Methods(http.MethodPost)

	integrity := handler.NewIntegrityHandler(s.services.Monitor, s.errorHandler, s.logger)
	s.router.HandleFunc("/integrity/stats", integrity.Stats).Methods(http.MethodGet)
	s.router.HandleFunc("/integrity/run/{pass}", integrity.RunPass).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.KindNotFound, "endpoint not found", r.Header.Get("X-Request-ID"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.KindBadRequest, "method not allowed", r.Header.Get("X-Request-ID"))
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
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
