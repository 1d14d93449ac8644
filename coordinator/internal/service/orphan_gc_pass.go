package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/store"
	"github.com/devrev/pairfs/coordinator/internal/util/workerpool"
)

type chunkKey struct {
	blobID     string
	chunkIndex int
}

// runOrphanGC deletes chunks that healthy nodes hold but no metadata describes.
// The mark set is every chunk index in range of every blob; candidates are
// re-checked against the store before deletion so a blob planned during the
// pass keeps its chunks.
func (m *IntegrityMonitor) runOrphanGC(ctx context.Context, res *passCounters) error {
	blobs, err := m.metadataStore.List(ctx)
	if err != nil {
		return err
	}
	valid := make(map[chunkKey]struct{})
	for _, meta := range blobs {
		for idx := 0; idx < meta.NumChunks(); idx++ {
			valid[chunkKey{meta.BlobID, idx}] = struct{}{}
		}
	}

	healthy := m.membership.HealthyNodes()
	tasks := make([]workerpool.Task, 0, len(healthy))
	for _, node := range healthy {
		endpoint := node.Endpoint
		tasks = append(tasks, workerpool.Task{
			ID: PassGC + ":" + endpoint,
			Fn: func(ctx context.Context) error {
				return m.collectNode(ctx, endpoint, valid, res)
			},
		})
	}
	_, err = m.pool.RunAll(ctx, tasks)
	return err
}

func (m *IntegrityMonitor) collectNode(ctx context.Context, endpoint string, valid map[chunkKey]struct{}, res *passCounters) error {
	inventory, err := m.chunks.Inventory(ctx, endpoint)
	if err != nil {
		res.add(&res.unresolved, 1)
		return err
	}

	for blobID, indices := range inventory {
		for _, idx := range indices {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.add(&res.checked, 1)
			if _, ok := valid[chunkKey{blobID, idx}]; ok {
				continue
			}
			if m.stillReferenced(ctx, blobID, idx) {
				continue
			}

			if err := m.deleteChunk(ctx, endpoint, blobID, idx); err != nil {
				m.logger.Warn("Failed to delete orphan chunk",
					zap.String("endpoint", endpoint),
					zap.String("blob_id", blobID),
					zap.Int("chunk_index", idx),
					zap.Error(err))
				res.add(&res.unresolved, 1)
				continue
			}
			res.add(&res.removed, 1)
			m.logger.Info("Orphan chunk deleted",
				zap.String("endpoint", endpoint),
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", idx))
		}
	}
	return nil
}

func (m *IntegrityMonitor) stillReferenced(ctx context.Context, blobID string, chunkIndex int) bool {
	meta, err := m.metadataStore.Get(ctx, blobID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		// Unknown state: keep the chunk.
		return true
	}
	return chunkIndex < meta.NumChunks()
}
