package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/model"
)

// runReplication brings every chunk to min(replicationFactor, healthy nodes)
// active replicas, where active means on a healthy node and confirmed to exist.
func (m *IntegrityMonitor) runReplication(ctx context.Context, res *passCounters) error {
	ranked := m.rankedHealthy()
	target := m.targetReplicas(len(ranked))
	if target == 0 {
		m.logger.Debug("Replication pass skipped: no healthy nodes")
		return nil
	}
	return m.forEachBlob(ctx, PassReplication, func(ctx context.Context, meta *model.BlobMetadata) error {
		for idx := 0; idx < meta.NumChunks(); idx++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.replicateChunk(ctx, meta, idx, ranked, target, res)
		}
		return nil
	})
}

func (m *IntegrityMonitor) activeReplicas(ctx context.Context, meta *model.BlobMetadata, chunkIndex int) []model.ReplicaLocation {
	var active []model.ReplicaLocation
	for _, loc := range meta.ReplicasByChunk()[chunkIndex] {
		if !m.membership.IsHealthy(loc.NodeEndpoint) {
			continue
		}
		exists, err := m.probe(ctx, loc.NodeEndpoint, meta.BlobID, chunkIndex)
		if err == nil && exists {
			active = append(active, loc)
		}
	}
	return active
}

func (m *IntegrityMonitor) replicateChunk(ctx context.Context, meta *model.BlobMetadata, chunkIndex int, ranked []string, target int, res *passCounters) {
	res.add(&res.checked, 1)
	active := m.activeReplicas(ctx, meta, chunkIndex)

	logger := m.logger.With(
		zap.String("blob_id", meta.BlobID),
		zap.Int("chunk_index", chunkIndex))

	switch {
	case len(active) < target:
		if len(active) == 0 {
			logger.Warn("Under-replicated chunk has no healthy source, retrying next cycle",
				zap.Int("target", target))
			return
		}
		source := active[0].NodeEndpoint
		need := target - len(active)

		isActive := make(map[string]bool, len(active))
		for _, loc := range active {
			isActive[loc.NodeEndpoint] = true
		}
		var candidates []string
		for _, endpoint := range ranked {
			if !meta.HasReplica(chunkIndex, endpoint) {
				candidates = append(candidates, endpoint)
			}
		}
		if len(candidates) < need {
			// Not enough chunk-free nodes: reuse healthy nodes whose listed
			// replica failed its existence check.
			for _, endpoint := range ranked {
				if endpoint != source && !isActive[endpoint] && meta.HasReplica(chunkIndex, endpoint) {
					candidates = append(candidates, endpoint)
				}
			}
		}

		for _, endpoint := range candidates {
			if need == 0 {
				break
			}
			if err := m.copyChunk(ctx, meta.BlobID, chunkIndex, source, endpoint); err != nil {
				logger.Warn("Re-replication copy failed",
					zap.String("source", source),
					zap.String("target", endpoint),
					zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			slot, added, err := m.metadataStore.AddReplica(ctx, meta.BlobID, chunkIndex, endpoint)
			if err != nil {
				logger.Warn("Failed to record new replica", zap.String("target", endpoint), zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			if added {
				meta.Replicas = append(meta.Replicas, model.ReplicaLocation{
					ChunkIndex:   chunkIndex,
					NodeEndpoint: endpoint,
					Slot:         slot,
				})
			}
			need--
			res.add(&res.created, 1)
			logger.Info("Chunk re-replicated",
				zap.String("source", source),
				zap.String("target", endpoint),
				zap.Int("slot", slot))
		}
		if need > 0 {
			logger.Warn("Chunk still under-replicated", zap.Int("missing", need))
		}

	case len(active) > target:
		sort.SliceStable(active, func(i, j int) bool { return active[i].Slot > active[j].Slot })
		for _, loc := range active[:len(active)-target] {
			if err := m.deleteChunk(ctx, loc.NodeEndpoint, meta.BlobID, chunkIndex); err != nil {
				logger.Warn("Failed to delete excess replica",
					zap.String("endpoint", loc.NodeEndpoint),
					zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			if _, err := m.metadataStore.RemoveReplica(ctx, meta.BlobID, chunkIndex, loc.NodeEndpoint); err != nil {
				logger.Warn("Failed to remove excess replica from metadata",
					zap.String("endpoint", loc.NodeEndpoint),
					zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			res.add(&res.removed, 1)
			logger.Info("Excess replica removed",
				zap.String("endpoint", loc.NodeEndpoint),
				zap.Int("slot", loc.Slot))
		}
	}
}
