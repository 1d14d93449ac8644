package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/storage-node/internal/errors"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/storage/chunkstore"
	"github.com/devrev/pairfs/storage-node/internal/storage/diskmanager"
	"github.com/devrev/pairfs/storage-node/internal/util"
	"github.com/devrev/pairfs/storage-node/internal/validation"
)

// DiskGuard decides whether the data volume can take another write
type DiskGuard interface {
	CheckBeforeWrite(estimatedBytes uint64) error
	GetDiskUsage() diskmanager.DiskUsageStats
}

// PeerSource lists storage nodes known through gossip
type PeerSource interface {
	Peers() []api.PeerInfo
}

// ChunkService orchestrates chunk operations on the local store
type ChunkService struct {
	nodeID    string
	store     *chunkstore.Store
	validator *validation.Validator
	disk      DiskGuard
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu    sync.RWMutex
	peers PeerSource
}

// NewChunkService creates a new chunk service. disk may be nil to skip the
// free space check.
func NewChunkService(
	nodeID string,
	store *chunkstore.Store,
	validator *validation.Validator,
	disk DiskGuard,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ChunkService {
	return &ChunkService{
		nodeID:    nodeID,
		store:     store,
		validator: validator,
		disk:      disk,
		metrics:   m,
		logger:    logger,
	}
}

// SetPeerSource attaches the gossip view reported by NodeStats
func (s *ChunkService) SetPeerSource(peers PeerSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = peers
}

// Write stores a chunk, replacing any previous copy
func (s *ChunkService) Write(ctx context.Context, blobID string, chunkIndex int, data []byte) error {
	start := time.Now()

	if err := s.validator.ValidateWrite(blobID, chunkIndex, data); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Unavailable("request cancelled", err)
	}

	if s.disk != nil {
		if err := s.disk.CheckBeforeWrite(uint64(len(data) + util.ChecksumSize)); err != nil {
			s.metrics.RecordDiskFull()
			s.logger.Warn("Write rejected by disk guard",
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", chunkIndex),
				zap.Error(err))
			s.metrics.RecordChunkOp("write", time.Since(start), 0, err)
			return err
		}
	}

	err := s.store.Write(blobID, chunkIndex, data)
	s.metrics.RecordChunkOp("write", time.Since(start), len(data), err)
	if err != nil {
		s.logger.Error("Chunk write failed",
			zap.String("blob_id", blobID),
			zap.Int("chunk_index", chunkIndex),
			zap.Error(err))
		return err
	}

	s.logger.Debug("Chunk stored",
		zap.String("blob_id", blobID),
		zap.Int("chunk_index", chunkIndex),
		zap.Int("bytes", len(data)))
	return nil
}

// Read returns a chunk's bytes after checksum validation
func (s *ChunkService) Read(ctx context.Context, blobID string, chunkIndex int) ([]byte, error) {
	start := time.Now()

	if err := s.validator.ValidateChunkRef(blobID, chunkIndex); err != nil {
		return nil, err
	}

	data, err := s.store.Read(blobID, chunkIndex)
	s.metrics.RecordChunkOp("read", time.Since(start), len(data), err)
	if err != nil {
		switch errors.GetCode(err) {
		case errors.ErrCodeChunkNotFound:
		case errors.ErrCodeChecksumFailed, errors.ErrCodeCorruptedData:
			s.metrics.RecordChecksumFailure()
			s.logger.Error("Corrupted chunk on disk",
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", chunkIndex),
				zap.Error(err))
		default:
			s.logger.Error("Chunk read failed",
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", chunkIndex),
				zap.Error(err))
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether the chunk is stored locally
func (s *ChunkService) Exists(ctx context.Context, blobID string, chunkIndex int) (bool, error) {
	if err := s.validator.ValidateChunkRef(blobID, chunkIndex); err != nil {
		return false, err
	}
	return s.store.Exists(blobID, chunkIndex)
}

// Delete removes a chunk. Deleting an absent chunk succeeds.
func (s *ChunkService) Delete(ctx context.Context, blobID string, chunkIndex int) error {
	start := time.Now()

	if err := s.validator.ValidateChunkRef(blobID, chunkIndex); err != nil {
		return err
	}

	removed, err := s.store.Delete(blobID, chunkIndex)
	s.metrics.RecordChunkOp("delete", time.Since(start), 0, err)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Debug("Chunk deleted",
			zap.String("blob_id", blobID),
			zap.Int("chunk_index", chunkIndex))
	}
	return nil
}

// Inventory lists locally present chunks per blob
func (s *ChunkService) Inventory(ctx context.Context) (api.Inventory, error) {
	return s.store.Inventory()
}

// Stats counts locally stored chunks and refreshes the inventory gauges
func (s *ChunkService) Stats(ctx context.Context) (chunkstore.Stats, error) {
	st, err := s.store.Stats()
	if err != nil {
		return st, err
	}
	s.metrics.UpdateInventory(st.TotalChunks, st.TotalBytes)
	return st, nil
}

// NodeStats builds the GET /chunk/stats report
func (s *ChunkService) NodeStats(ctx context.Context) (*api.NodeStatsResponse, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	resp := &api.NodeStatsResponse{
		NodeID:        s.nodeID,
		TotalChunks:   st.TotalChunks,
		StorageUsedMB: st.StorageUsedMB(),
	}
	if s.disk != nil {
		resp.DiskUsage = s.disk.GetDiskUsage().UsagePercent
	}

	s.mu.RLock()
	peers := s.peers
	s.mu.RUnlock()
	if peers != nil {
		resp.Peers = peers.Peers()
	}
	return resp, nil
}
