// Package handler serves the storage node chunk API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/storage-node/internal/errors"
	"github.com/devrev/pairfs/storage-node/internal/service"
)

// ChunkHandler exposes ChunkService over HTTP
type ChunkHandler struct {
	chunks       *service.ChunkService
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewChunkHandler creates a new chunk handler
func NewChunkHandler(chunks *service.ChunkService, errorHandler *apierrors.Handler, logger *zap.Logger) *ChunkHandler {
	return &ChunkHandler{
		chunks:       chunks,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Write handles POST /chunk/write.
func (h *ChunkHandler) Write(w http.ResponseWriter, r *http.Request) {
	var req api.WriteChunkRequest
	if r.Body == nil {
		h.fail(w, r, apierrors.BadRequest("request body is required"))
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, apierrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	if err := h.chunks.Write(r.Context(), req.ResolvedBlobID(), req.ChunkIndex, req.Data); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.AckResponse{Status: "ok"})
}

// Read handles GET /chunk/read?blobId=&chunkIndex=.
func (h *ChunkHandler) Read(w http.ResponseWriter, r *http.Request) {
	blobID, idx, err := chunkRef(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data, err := h.chunks.Read(r.Context(), blobID, idx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.ReadChunkResponse{
		BlobID:     blobID,
		ChunkIndex: idx,
		Data:       data,
		Size:       len(data),
	})
}

// Exists handles GET /chunk/exists?blobId=&chunkIndex=.
func (h *ChunkHandler) Exists(w http.ResponseWriter, r *http.Request) {
	blobID, idx, err := chunkRef(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok, err := h.chunks.Exists(r.Context(), blobID, idx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.ExistsResponse{Exists: ok})
}

// Delete handles DELETE /chunk/delete?blobId=&chunkIndex=. Deleting a missing chunk succeeds.
func (h *ChunkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	blobID, idx, err := chunkRef(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.chunks.Delete(r.Context(), blobID, idx); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, api.AckResponse{Status: "deleted"})
}

// Inventory handles GET /chunk/inventory.
func (h *ChunkHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.chunks.Inventory(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, inv)
}

// Stats handles GET /chunk/stats.
func (h *ChunkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chunks.NodeStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, stats)
}

func (h *ChunkHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.errorHandler.HandleError(w, r, errors.ToAPIError(err))
}

// chunkRef reads blobId (or the legacy pdfId) and chunkIndex from the query string.
func chunkRef(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	blobID := q.Get("blobId")
	if blobID == "" {
		blobID = q.Get("pdfId")
	}
	if blobID == "" {
		return "", 0, apierrors.BadRequest("blobId is required")
	}
	raw := q.Get("chunkIndex")
	if raw == "" {
		return "", 0, apierrors.BadRequest("chunkIndex is required")
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, apierrors.BadRequest("invalid chunkIndex %q", raw)
	}
	return blobID, idx, nil
}

func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
