// Package handler provides the coordinator's HTTP handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apierrors.BadRequest("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierrors.BadRequest("invalid JSON body: %v", err)
	}
	return nil
}

func toPlacements(locs []model.ReplicaLocation) []api.ChunkPlacement {
	out := make([]api.ChunkPlacement, len(locs))
	for i, loc := range locs {
		out[i] = api.ChunkPlacement{
			ChunkIndex:   loc.ChunkIndex,
			NodeEndpoint: loc.NodeEndpoint,
			ReplicaIndex: loc.Slot,
		}
	}
	return out
}

func toMetadataResponse(meta *model.BlobMetadata) api.BlobMetadataResponse {
	return api.BlobMetadataResponse{
		BlobID:    meta.BlobID,
		Size:      meta.Size,
		ChunkSize: meta.ChunkSize,
		CreatedAt: meta.CreatedAt,
		Chunks:    toPlacements(meta.Replicas),
	}
}
