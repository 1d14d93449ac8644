package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/service"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

// BlobHandler serves upload planning and blob metadata.
type BlobHandler struct {
	blobService       *service.BlobService
	replicationFactor int
	errorHandler      *apierrors.Handler
	logger            *zap.Logger
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(blobService *service.BlobService, replicationFactor int, errorHandler *apierrors.Handler, logger *zap.Logger) *BlobHandler {
	return &BlobHandler{
		blobService:       blobService,
		replicationFactor: replicationFactor,
		errorHandler:      errorHandler,
		logger:            logger,
	}
}

// PlanUpload handles POST /plan-upload.
func (h *BlobHandler) PlanUpload(w http.ResponseWriter, r *http.Request) {
	var req api.PlanUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	meta, err := h.blobService.PlanUpload(r.Context(), req.BlobID, req.Size)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, api.PlanUploadResponse{
		BlobID:            meta.BlobID,
		Size:              meta.Size,
		ChunkSize:         meta.ChunkSize,
		ReplicationFactor: h.replicationFactor,
		Chunks:            toPlacements(meta.Replicas),
	})
}

// GetMetadata handles GET /metadata/{blobId}.
func (h *BlobHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.blobService.GetMetadata(r.Context(), mux.Vars(r)["blobId"])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, toMetadataResponse(meta))
}

// ListBlobs handles GET /blobs.
func (h *BlobHandler) ListBlobs(w http.ResponseWriter, r *http.Request) {
	blobs, err := h.blobService.ListBlobs(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	out := make([]api.BlobMetadataResponse, len(blobs))
	for i, meta := range blobs {
		out[i] = toMetadataResponse(meta)
	}
	writeJSONResponse(w, h.logger, http.StatusOK, out)
}

// DeleteBlob handles DELETE /blob/{blobId}.
func (h *BlobHandler) DeleteBlob(w http.ResponseWriter, r *http.Request) {
	blobID := mux.Vars(r)["blobId"]
	if err := h.blobService.DeleteBlob(r.Context(), blobID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.AckResponse{Status: "deleted", Message: blobID})
}

// Status handles GET /status.
func (h *BlobHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.blobService.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, status)
}
