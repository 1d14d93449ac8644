package store

import (
	"context"
	"errors"

	"github.com/devrev/pairfs/coordinator/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// Snapshot is the whole blobId to BlobMetadata table as persisted.
type Snapshot map[string]*model.BlobMetadata

// SnapshotStore persists exactly one snapshot artifact per coordinator instance.
// Load returns an empty snapshot when no artifact exists yet.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Ping(ctx context.Context) error
	Close() error
}

// MetadataStore holds blob placement metadata. Every mutation is atomic per
// blob and is followed by a full snapshot persist.
type MetadataStore interface {
	Get(ctx context.Context, blobID string) (*model.BlobMetadata, error)
	Put(ctx context.Context, meta *model.BlobMetadata) error
	Delete(ctx context.Context, blobID string) error
	List(ctx context.Context) ([]*model.BlobMetadata, error)

	// AddReplica appends a location with slot max+1 for the chunk. It returns
	// added=false without changes when the chunk is already on endpoint.
	AddReplica(ctx context.Context, blobID string, chunkIndex int, endpoint string) (slot int, added bool, err error)
	// RemoveReplica drops the location of chunkIndex on endpoint.
	RemoveReplica(ctx context.Context, blobID string, chunkIndex int, endpoint string) (bool, error)
	// UpdateReplicaLocation repoints a location to a new endpoint, keeping its slot.
	UpdateReplicaLocation(ctx context.Context, blobID string, chunkIndex int, oldEndpoint, newEndpoint string) error

	Ping(ctx context.Context) error
}
