package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/service"
	"github.com/devrev/pairfs/pkg/apierrors"
)

// IntegrityHandler exposes monitor statistics and manual pass runs.
type IntegrityHandler struct {
	monitor      *service.IntegrityMonitor
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewIntegrityHandler creates a new integrity handler
func NewIntegrityHandler(monitor *service.IntegrityMonitor, errorHandler *apierrors.Handler, logger *zap.Logger) *IntegrityHandler {
	return &IntegrityHandler{
		monitor:      monitor,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Stats handles GET /integrity/stats.
func (h *IntegrityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.logger, http.StatusOK, h.monitor.Stats())
}

// RunPass handles POST /integrity/run/{pass}. The pass runs synchronously.
func (h *IntegrityHandler) RunPass(w http.ResponseWriter, r *http.Request) {
	pass := mux.Vars(r)["pass"]
	h.logger.Info("Manual integrity pass requested", zap.String("pass", pass))

	result, err := h.monitor.RunPass(r.Context(), pass)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, result)
}
