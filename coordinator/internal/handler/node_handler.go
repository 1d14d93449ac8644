package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/service"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

// NodeHandler handles storage node registration and heartbeats
type NodeHandler struct {
	membership   *service.MembershipService
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(membership *service.MembershipService, errorHandler *apierrors.Handler, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{
		membership:   membership,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Register handles POST /register.
func (h *NodeHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.membership.Register(req.URL, req.ID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.AckResponse{Status: "registered"})
}

// Heartbeat handles POST /heartbeat.
func (h *NodeHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req api.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.membership.Heartbeat(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.AckResponse{Status: "ok"})
}
