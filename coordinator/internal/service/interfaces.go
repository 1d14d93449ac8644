package service

import (
	"context"
	"time"

	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/pkg/api"
)

// ChunkClient is the subset of the storage node API the coordinator drives.
type ChunkClient interface {
	Exists(ctx context.Context, endpoint, blobID string, chunkIndex int) (bool, error)
	Read(ctx context.Context, endpoint, blobID string, chunkIndex int) ([]byte, error)
	Write(ctx context.Context, endpoint, blobID string, chunkIndex int, data []byte) error
	Delete(ctx context.Context, endpoint, blobID string, chunkIndex int) error
	Inventory(ctx context.Context, endpoint string) (api.Inventory, error)
}

// NodeDirectory answers membership questions for placement and reconciliation.
type NodeDirectory interface {
	HealthyNodes() []*model.NodeRecord
	Nodes() []*model.NodeRecord
	IsHealthy(endpoint string) bool
	// Timeout is how long a node may stay silent before it counts as unhealthy.
	Timeout() time.Duration
}
