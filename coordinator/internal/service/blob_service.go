package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/metrics"
	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/coordinator/internal/store"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/blobid"
)

// BlobService owns upload planning and metadata queries.
type BlobService struct {
	metadataStore     store.MetadataStore
	membership        NodeDirectory
	placement         *PlacementService
	chunkSize         int
	replicationFactor int
	metrics           *metrics.Metrics
	logger            *zap.Logger
}

// NewBlobService creates a new blob service
func NewBlobService(
	metadataStore store.MetadataStore,
	membership NodeDirectory,
	placement *PlacementService,
	chunkSize int,
	replicationFactor int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BlobService {
	return &BlobService{
		metadataStore:     metadataStore,
		membership:        membership,
		placement:         placement,
		chunkSize:         chunkSize,
		replicationFactor: replicationFactor,
		metrics:           m,
		logger:            logger,
	}
}

// PlanUpload places every chunk of a new blob on the healthy nodes and
// persists the metadata. Planning an existing blob id replaces it.
func (s *BlobService) PlanUpload(ctx context.Context, blobID string, size int64) (*model.BlobMetadata, error) {
	if err := blobid.Validate(blobID); err != nil {
		s.metrics.RecordPlan("invalid")
		return nil, apierrors.BadRequest("invalid blobId: %v", err)
	}
	if size < 0 {
		s.metrics.RecordPlan("invalid")
		return nil, apierrors.BadRequest("size must be non-negative")
	}

	healthy := s.membership.HealthyNodes()
	if len(healthy) == 0 {
		s.metrics.RecordPlan("unavailable")
		return nil, apierrors.Unavailable("no healthy storage nodes")
	}

	meta := &model.BlobMetadata{
		BlobID:    blobID,
		Size:      size,
		ChunkSize: s.chunkSize,
		CreatedAt: time.Now().UTC(),
		Replicas:  s.placement.Plan(size, healthy),
	}

	if err := s.metadataStore.Put(ctx, meta); err != nil {
		s.metrics.RecordPlan("error")
		return nil, apierrors.Internal(err, "failed to persist metadata for %s", blobID)
	}

	s.metrics.RecordPlan("success")
	s.logger.Info("Upload planned",
		zap.String("blob_id", blobID),
		zap.Int64("size", size),
		zap.Int("chunks", meta.NumChunks()),
		zap.Int("replicas", len(meta.Replicas)),
		zap.Int("healthy_nodes", len(healthy)))

	return meta.Clone(), nil
}

// GetMetadata returns the blob's metadata restricted to replicas on healthy
// nodes. Hidden replicas stay in the store.
func (s *BlobService) GetMetadata(ctx context.Context, blobID string) (*model.BlobMetadata, error) {
	meta, err := s.get(ctx, blobID)
	if err != nil {
		return nil, err
	}
	return meta.FilterReplicas(func(loc model.ReplicaLocation) bool {
		return s.membership.IsHealthy(loc.NodeEndpoint)
	}), nil
}

func (s *BlobService) get(ctx context.Context, blobID string) (*model.BlobMetadata, error) {
	if blobID == "" {
		return nil, apierrors.BadRequest("blobId is required")
	}
	meta, err := s.metadataStore.Get(ctx, blobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.NotFound("blob not found: %s", blobID)
	}
	if err != nil {
		return nil, apierrors.Internal(err, "failed to load metadata for %s", blobID)
	}
	return meta, nil
}

// ListBlobs returns the unfiltered metadata of every blob.
func (s *BlobService) ListBlobs(ctx context.Context) ([]*model.BlobMetadata, error) {
	blobs, err := s.metadataStore.List(ctx)
	if err != nil {
		return nil, apierrors.Internal(err, "failed to list blobs")
	}
	return blobs, nil
}

// DeleteBlob removes a blob's metadata. Its chunks become orphans that the
// garbage collection pass reclaims.
func (s *BlobService) DeleteBlob(ctx context.Context, blobID string) error {
	if blobID == "" {
		return apierrors.BadRequest("blobId is required")
	}
	err := s.metadataStore.Delete(ctx, blobID)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFound("blob not found: %s", blobID)
	}
	if err != nil {
		return apierrors.Internal(err, "failed to delete metadata for %s", blobID)
	}

	s.logger.Info("Blob metadata deleted", zap.String("blob_id", blobID))
	return nil
}

// Status summarizes membership, metadata and per-node load.
func (s *BlobService) Status(ctx context.Context) (*api.StatusResponse, error) {
	blobs, err := s.metadataStore.List(ctx)
	if err != nil {
		return nil, apierrors.Internal(err, "failed to list blobs")
	}

	resp := &api.StatusResponse{
		TotalBlobs:        len(blobs),
		ChunkSize:         s.chunkSize,
		ReplicationFactor: s.replicationFactor,
		HealthyServers:    []string{},
		LoadDistribution:  []api.NodeLoad{},
	}
	for _, meta := range blobs {
		resp.TotalChunks += meta.NumChunks()
		resp.TotalReplicas += len(meta.Replicas)
	}

	for _, node := range s.membership.Nodes() {
		healthy := s.membership.IsHealthy(node.Endpoint)
		resp.TotalNodes++
		if healthy {
			resp.HealthyNodes++
			resp.HealthyServers = append(resp.HealthyServers, node.Endpoint)
		} else {
			resp.UnhealthyNodes++
		}
		resp.LoadDistribution = append(resp.LoadDistribution, api.NodeLoad{
			NodeID:        node.ID,
			URL:           node.Endpoint,
			Healthy:       healthy,
			Chunks:        node.ChunkCount(),
			StorageUsedMB: node.StorageUsedMB,
			LastHeartbeat: node.LastHeartbeat,
		})
	}
	return resp, nil
}
