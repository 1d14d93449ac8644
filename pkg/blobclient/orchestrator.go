package blobclient

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/blobid"
)

// Planner obtains placement plans and metadata from the coordinator.
type Planner interface {
	PlanUpload(ctx context.Context, blobID string, size int64) (*api.PlanUploadResponse, error)
	GetMetadata(ctx context.Context, blobID string) (*api.BlobMetadataResponse, error)
}

// ChunkIO reads and writes chunks on storage nodes.
type ChunkIO interface {
	Write(ctx context.Context, endpoint, blobID string, chunkIndex int, data []byte) error
	Read(ctx context.Context, endpoint, blobID string, chunkIndex int) ([]byte, error)
}

// UploadResult reports the outcome of an upload. Replica failures do not fail
// the upload.
type UploadResult struct {
	BlobID          string `json:"blobId"`
	Size            int64  `json:"size"`
	Chunks          int    `json:"chunks"`
	ReplicaWrites   int    `json:"replicaWrites"`
	ReplicaFailures int    `json:"replicaFailures"`
}

// Orchestrator splits blobs into chunks, fans writes out to replica sets and
// reassembles blobs with ordered replica fallback.
type Orchestrator struct {
	planner     Planner
	chunks      ChunkIO
	parallelism int
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator. parallelism bounds concurrent replica writes.
func NewOrchestrator(planner Planner, chunks ChunkIO, parallelism int, logger *zap.Logger) *Orchestrator {
	if parallelism <= 0 {
		parallelism = 8
	}
	return &Orchestrator{
		planner:     planner,
		chunks:      chunks,
		parallelism: parallelism,
		logger:      logger,
	}
}

// numChunks returns ceil(size/chunkSize).
func numChunks(size int64, chunkSize int) int {
	if size <= 0 {
		return 0
	}
	cs := int64(chunkSize)
	return int((size + cs - 1) / cs)
}

// chunkBounds returns the [start, end) window of chunk i.
func chunkBounds(i int, size int64, chunkSize int) (int64, int64) {
	start := int64(i) * int64(chunkSize)
	end := start + int64(chunkSize)
	if end > size {
		end = size
	}
	return start, end
}

// UploadBlob stores data under name, or under a generated id when name is empty.
// It succeeds once a plan is obtained; individual replica write failures are
// counted in the result. Cancelling ctx aborts in-flight writes and returns ctx.Err().
func (o *Orchestrator) UploadBlob(ctx context.Context, data []byte, name string) (*UploadResult, error) {
	blobID := name
	if blobID == "" {
		blobID = uuid.New().String()
	} else if err := blobid.Validate(blobID); err != nil {
		return nil, apierrors.BadRequest("invalid blob name: %v", err)
	}
	size := int64(len(data))

	plan, err := o.planner.PlanUpload(ctx, blobID, size)
	if err != nil {
		return nil, err
	}
	if plan.ChunkSize <= 0 {
		return nil, apierrors.Internal(nil, "coordinator returned invalid chunk size %d", plan.ChunkSize)
	}

	n := numChunks(size, plan.ChunkSize)
	var writes, failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)

	for _, placement := range plan.Chunks {
		if placement.ChunkIndex < 0 || placement.ChunkIndex >= n {
			o.logger.Warn("Ignoring placement outside blob range",
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", placement.ChunkIndex))
			continue
		}
		if ctx.Err() != nil {
			break
		}

		p := placement
		start, end := chunkBounds(p.ChunkIndex, size, plan.ChunkSize)
		chunk := data[start:end]

		g.Go(func() error {
			if err := o.chunks.Write(gctx, p.NodeEndpoint, blobID, p.ChunkIndex, chunk); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures.Add(1)
				o.logger.Warn("Replica write failed",
					zap.String("blob_id", blobID),
					zap.Int("chunk_index", p.ChunkIndex),
					zap.Int("replica_index", p.ReplicaIndex),
					zap.String("node", p.NodeEndpoint),
					zap.Error(err))
				return nil
			}
			writes.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &UploadResult{
		BlobID:          blobID,
		Size:            size,
		Chunks:          n,
		ReplicaWrites:   int(writes.Load()),
		ReplicaFailures: int(failures.Load()),
	}
	o.logger.Info("Blob uploaded",
		zap.String("blob_id", blobID),
		zap.Int64("size", size),
		zap.Int("chunks", n),
		zap.Int("replica_writes", result.ReplicaWrites),
		zap.Int("replica_failures", result.ReplicaFailures))
	return result, nil
}

// DownloadBlob reassembles a blob. Chunks are fetched strictly in index order,
// trying each listed replica in slot order. A chunk with no readable replica
// fails the whole download with an Unavailable error and no partial bytes.
func (o *Orchestrator) DownloadBlob(ctx context.Context, blobID string) ([]byte, error) {
	meta, err := o.planner.GetMetadata(ctx, blobID)
	if err != nil {
		return nil, err
	}

	byChunk := make(map[int][]api.ChunkPlacement)
	maxIndex := -1
	for _, c := range meta.Chunks {
		byChunk[c.ChunkIndex] = append(byChunk[c.ChunkIndex], c)
		if c.ChunkIndex > maxIndex {
			maxIndex = c.ChunkIndex
		}
	}
	for idx := range byChunk {
		replicas := byChunk[idx]
		sort.SliceStable(replicas, func(i, j int) bool {
			return replicas[i].ReplicaIndex < replicas[j].ReplicaIndex
		})
	}

	n := maxIndex + 1
	if meta.ChunkSize > 0 {
		n = numChunks(meta.Size, meta.ChunkSize)
	}

	buf := make([]byte, 0, meta.Size)
	for i := 0; i < n; i++ {
		want := int64(-1)
		if meta.ChunkSize > 0 {
			start, end := chunkBounds(i, meta.Size, meta.ChunkSize)
			want = end - start
		}

		data, err := o.readChunk(ctx, blobID, i, byChunk[i], want)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}

	if int64(len(buf)) != meta.Size {
		return nil, apierrors.Internal(nil, "blob %s reassembled to %d bytes, expected %d", blobID, len(buf), meta.Size)
	}
	return buf, nil
}

func (o *Orchestrator) readChunk(ctx context.Context, blobID string, idx int, replicas []api.ChunkPlacement, want int64) ([]byte, error) {
	if len(replicas) == 0 {
		return nil, apierrors.Unavailable("chunk %d of blob %s has no available replica", idx, blobID)
	}

	for _, r := range replicas {
		data, err := o.chunks.Read(ctx, r.NodeEndpoint, blobID, idx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("Replica read failed, trying next",
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", idx),
				zap.String("node", r.NodeEndpoint),
				zap.Error(err))
			continue
		}
		if want >= 0 && int64(len(data)) != want {
			o.logger.Warn("Replica returned wrong chunk length, trying next",
				zap.String("blob_id", blobID),
				zap.Int("chunk_index", idx),
				zap.String("node", r.NodeEndpoint),
				zap.Int("got", len(data)),
				zap.Int64("want", want))
			continue
		}
		return data, nil
	}
	return nil, apierrors.Unavailable("chunk %d of blob %s unreachable on all %d replicas", idx, blobID, len(replicas))
}
