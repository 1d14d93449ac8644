// Package handler provides HTTP request handlers for the gateway.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/gateway/internal/metrics"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/blobclient"
	"github.com/devrev/pairfs/pkg/blobid"
)

// BlobTransfer moves blob bytes to and from storage nodes.
type BlobTransfer interface {
	UploadBlob(ctx context.Context, data []byte, name string) (*blobclient.UploadResult, error)
	DownloadBlob(ctx context.Context, blobID string) ([]byte, error)
}

// Catalog answers metadata queries from the coordinator.
type Catalog interface {
	GetMetadata(ctx context.Context, blobID string) (*api.BlobMetadataResponse, error)
	ListBlobs(ctx context.Context) ([]api.BlobMetadataResponse, error)
	DeleteBlob(ctx context.Context, blobID string) error
	Status(ctx context.Context) (*api.StatusResponse, error)
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	transfer       BlobTransfer
	catalog        Catalog
	errorHandler   *apierrors.Handler
	metrics        *metrics.Metrics
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	transfer BlobTransfer,
	catalog Catalog,
	errorHandler *apierrors.Handler,
	m *metrics.Metrics,
	logger *zap.Logger,
	maxUploadBytes int64,
) *Handlers {
	return &Handlers{
		transfer:       transfer,
		catalog:        catalog,
		errorHandler:   errorHandler,
		metrics:        m,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadBlob handles POST /v1/blobs. The raw body is the blob; the name comes
// from the name query parameter or the X-Blob-Name header, else a UUID is generated.
func (h *Handlers) UploadBlob(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	name := r.URL.Query().Get("name")
	if name == "" {
		name = r.Header.Get("X-Blob-Name")
	}
	if err := validateBlobName(name); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorHandler.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, apierrors.KindBadRequest,
				fmt.Sprintf("blob exceeds %d bytes", h.maxUploadBytes), requestID)
			return
		}
		h.errorHandler.WriteValidationError(w, "failed to read request body: "+err.Error(), requestID)
		return
	}

	result, err := h.transfer.UploadBlob(r.Context(), data, name)
	if err != nil {
		h.metrics.RecordUpload(int64(len(data)), 0, 0, err)
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.metrics.RecordUpload(result.Size, result.ReplicaWrites, result.ReplicaFailures, nil)

	w.Header().Set("Location", "/v1/blobs/"+result.BlobID)
	h.writeJSONResponse(w, http.StatusCreated, result)
}

// DownloadBlob handles GET /v1/blobs/{blobId}.
func (h *Handlers) DownloadBlob(w http.ResponseWriter, r *http.Request) {
	blobID := mux.Vars(r)["blobId"]

	data, err := h.transfer.DownloadBlob(r.Context(), blobID)
	h.metrics.RecordDownload(len(data), err)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blobID))
	w.Header().Set("X-Blob-Id", blobID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write blob", zap.String("blob_id", blobID), zap.Error(err))
	}
}

// GetMetadata handles GET /v1/blobs/{blobId}/metadata.
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.catalog.GetMetadata(r.Context(), mux.Vars(r)["blobId"])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, meta)
}

// ListBlobs handles GET /v1/blobs.
func (h *Handlers) ListBlobs(w http.ResponseWriter, r *http.Request) {
	blobs, err := h.catalog.ListBlobs(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if blobs == nil {
		blobs = []api.BlobMetadataResponse{}
	}
	h.writeJSONResponse(w, http.StatusOK, blobs)
}

// DeleteBlob handles DELETE /v1/blobs/{blobId}.
func (h *Handlers) DeleteBlob(w http.ResponseWriter, r *http.Request) {
	blobID := mux.Vars(r)["blobId"]
	if err := h.catalog.DeleteBlob(r.Context(), blobID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.Info("Blob deleted", zap.String("blob_id", blobID))
	h.writeJSONResponse(w, http.StatusOK, api.AckResponse{Status: "deleted"})
}

// Status handles GET /v1/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.catalog.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, status)
}

// validateBlobName applies the blob id rule. An empty name is valid and
// gets a generated id.
func validateBlobName(name string) error {
	if name == "" {
		return nil
	}
	return blobid.Validate(name)
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
