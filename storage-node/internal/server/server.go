// Package server wires the storage node's HTTP routes and middleware.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/middleware"
	"github.com/devrev/pairfs/storage-node/internal/config"
	"github.com/devrev/pairfs/storage-node/internal/handler"
	"github.com/devrev/pairfs/storage-node/internal/health"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/service"
)

// Server represents the storage node HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	errorHandler *apierrors.Handler
	chunks       *service.ChunkService
	health       *health.HealthChecker
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates the server and registers its routes. hc and m may be nil.
func NewServer(cfg *config.Config, chunks *service.ChunkService, hc *health.HealthChecker, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:       router,
		errorHandler: apierrors.NewHandler(logger),
		chunks:       chunks,
		health:       hc,
		metrics:      m,
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
	chain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.Metrics(s.metrics),
		middleware.Timeout(s.cfg.Server.RequestTimeout),
	)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	if s.health != nil {
		s.router.HandleFunc("/health/live", s.health.LivenessHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", s.health.ReadinessHandler).Methods(http.MethodGet)
	}

	chunks := handler.NewChunkHandler(s.chunks, s.errorHandler, s.logger)
	s.router.HandleFunc("/chunk/write", chunks.Write).Methods(http.MethodPost)
	s.router.HandleFunc("/chunk/read", chunks.Read).Methods(http.MethodGet)
	s.router.HandleFunc("/chunk/exists", chunks.Exists).Methods(http.MethodGet)
	s.router.HandleFunc("/chunk/delete", chunks.Delete).Methods(http.MethodDelete)
	s.router.HandleFunc("/chunk/inventory", chunks.Inventory).Methods(http.MethodGet)
	s.router.HandleFunc("/chunk/stats", chunks.Stats).Methods(http.MethodGet)

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
