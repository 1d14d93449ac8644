package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/model"
)

// runRepair restores missing replicas. A replica on a healthy node that no
// longer holds the chunk is re-copied in place; a replica on an unhealthy node
// is relocated to a healthy node and its metadata repointed, keeping the slot.
func (m *IntegrityMonitor) runRepair(ctx context.Context, res *passCounters) error {
	ranked := m.rankedHealthy()
	return m.forEachBlob(ctx, PassRepair, func(ctx context.Context, meta *model.BlobMetadata) error {
		m.repairBlob(ctx, meta, ranked, res)
		return ctx.Err()
	})
}

func (m *IntegrityMonitor) repairBlob(ctx context.Context, meta *model.BlobMetadata, ranked []string, res *passCounters) {
	for i := range meta.Replicas {
		if ctx.Err() != nil {
			return
		}
		loc := meta.Replicas[i]
		res.add(&res.checked, 1)

		logger := m.logger.With(
			zap.String("blob_id", meta.BlobID),
			zap.Int("chunk_index", loc.ChunkIndex),
			zap.String("endpoint", loc.NodeEndpoint))

		if m.membership.IsHealthy(loc.NodeEndpoint) {
			exists, err := m.probe(ctx, loc.NodeEndpoint, meta.BlobID, loc.ChunkIndex)
			if err == nil && exists {
				continue
			}
			if err != nil {
				logger.Debug("Existence probe failed, treating chunk as missing", zap.Error(err))
			}

			source := m.findSource(ctx, meta, loc.ChunkIndex, loc.NodeEndpoint)
			if source == "" {
				logger.Warn("Missing chunk has no healthy source")
				res.add(&res.unresolved, 1)
				continue
			}
			if err := m.copyChunk(ctx, meta.BlobID, loc.ChunkIndex, source, loc.NodeEndpoint); err != nil {
				logger.Warn("Chunk repair failed", zap.String("source", source), zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			logger.Info("Chunk repaired", zap.String("source", source))
			res.add(&res.repaired, 1)
			continue
		}

		source := m.findSource(ctx, meta, loc.ChunkIndex, loc.NodeEndpoint)
		if source == "" {
			logger.Warn("Replica on unhealthy node has no healthy source")
			res.add(&res.unresolved, 1)
			continue
		}
		target := ""
		for _, endpoint := range ranked {
			if !meta.HasReplica(loc.ChunkIndex, endpoint) {
				target = endpoint
				break
			}
		}
		if target == "" {
			logger.Warn("No healthy node available to relocate replica")
			res.add(&res.unresolved, 1)
			continue
		}

		if err := m.copyChunk(ctx, meta.BlobID, loc.ChunkIndex, source, target); err != nil {
			logger.Warn("Replica relocation copy failed",
				zap.String("source", source),
				zap.String("target", target),
				zap.Error(err))
			res.add(&res.unresolved, 1)
			continue
		}
		if err := m.metadataStore.UpdateReplicaLocation(ctx, meta.BlobID, loc.ChunkIndex, loc.NodeEndpoint, target); err != nil {
			logger.Warn("Failed to repoint relocated replica", zap.String("target", target), zap.Error(err))
			res.add(&res.unresolved, 1)
			continue
		}
		meta.Replicas[i].NodeEndpoint = target
		logger.Info("Replica relocated",
			zap.String("source", source),
			zap.String("target", target),
			zap.Int("slot", loc.Slot))
		res.add(&res.relocated, 1)
	}
}
