package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
	"github.com/devrev/pairfs/coordinator/internal/model"
)

// runStaleCleanup forgets replica locations on unhealthy nodes whose chunk
// cannot be confirmed. Under the grace policy a node must have been unhealthy
// for longer than the grace period first. A node turns unhealthy one heartbeat
// timeout after its last heartbeat.
func (m *IntegrityMonitor) runStaleCleanup(ctx context.Context, res *passCounters) error {
	policy := m.cfg.StaleCleanup.Policy
	if policy == config.StalePolicyDisabled {
		return nil
	}

	now := m.now()
	stale := make(map[string]bool)
	for _, node := range m.membership.Nodes() {
		if m.membership.IsHealthy(node.Endpoint) {
			continue
		}
		unhealthyFor := now.Sub(node.LastHeartbeat) - m.membership.Timeout()
		if policy == config.StalePolicyGrace && unhealthyFor <= m.cfg.StaleCleanup.GracePeriod {
			continue
		}
		stale[node.Endpoint] = true
	}
	if len(stale) == 0 {
		return nil
	}

	return m.forEachBlob(ctx, PassStale, func(ctx context.Context, meta *model.BlobMetadata) error {
		for _, loc := range meta.Replicas {
			if !stale[loc.NodeEndpoint] {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.add(&res.checked, 1)

			exists, err := m.chunks.Exists(ctx, loc.NodeEndpoint, meta.BlobID, loc.ChunkIndex)
			if err == nil && exists {
				continue
			}

			removed, err := m.metadataStore.RemoveReplica(ctx, meta.BlobID, loc.ChunkIndex, loc.NodeEndpoint)
			if err != nil {
				m.logger.Warn("Failed to remove stale replica",
					zap.String("blob_id", meta.BlobID),
					zap.Int("chunk_index", loc.ChunkIndex),
					zap.String("endpoint", loc.NodeEndpoint),
					zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			if removed {
				m.probes.Invalidate(loc.NodeEndpoint, meta.BlobID, loc.ChunkIndex)
				res.add(&res.removed, 1)
				m.logger.Info("Stale replica removed",
					zap.String("blob_id", meta.BlobID),
					zap.Int("chunk_index", loc.ChunkIndex),
					zap.String("endpoint", loc.NodeEndpoint))
			}
		}
		return nil
	})
}
