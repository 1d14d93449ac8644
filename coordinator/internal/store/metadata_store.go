package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/model"
)

// PersistObserver is notified after every snapshot save.
type PersistObserver interface {
	RecordSnapshotSave(duration time.Duration, blobs int, err error)
}

// SnapshotMetadataStore keeps metadata in memory and rewrites the whole table
// through a SnapshotStore after every mutation.
type SnapshotMetadataStore struct {
	mu    sync.RWMutex
	blobs map[string]*model.BlobMetadata

	// persistMu serializes saves; each save copies the table after acquiring
	// it, so the last completed save always holds the latest state.
	persistMu sync.Mutex
	backend   SnapshotStore
	observer  PersistObserver
	logger    *zap.Logger
}

// NewSnapshotMetadataStore loads the existing snapshot from backend and returns the store.
func NewSnapshotMetadataStore(ctx context.Context, backend SnapshotStore, observer PersistObserver, logger *zap.Logger) (*SnapshotMetadataStore, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata snapshot: %w", err)
	}
	blobs := make(map[string]*model.BlobMetadata, len(snap))
	for id, meta := range snap {
		if meta == nil {
			continue
		}
		meta.BlobID = id
		blobs[id] = meta
	}

	logger.Info("Metadata snapshot loaded", zap.Int("blobs", len(blobs)))

	return &SnapshotMetadataStore{
		blobs:    blobs,
		backend:  backend,
		observer: observer,
		logger:   logger,
	}, nil
}

// Get returns a copy of a blob's metadata.
func (s *SnapshotMetadataStore) Get(ctx context.Context, blobID string) (*model.BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.blobs[blobID]
	if !ok {
		return nil, ErrNotFound
	}
	return meta.Clone(), nil
}

// Put stores meta, replacing any previous metadata for the blob.
func (s *SnapshotMetadataStore) Put(ctx context.Context, meta *model.BlobMetadata) error {
	s.mu.Lock()
	s.blobs[meta.BlobID] = meta.Clone()
	s.mu.Unlock()

	return s.persist(ctx)
}

// Delete removes a blob. Deleting an unknown blob returns ErrNotFound.
func (s *SnapshotMetadataStore) Delete(ctx context.Context, blobID string) error {
	s.mu.Lock()
	if _, ok := s.blobs[blobID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.blobs, blobID)
	s.mu.Unlock()

	return s.persist(ctx)
}

// List returns copies of all blobs ordered by blob id.
func (s *SnapshotMetadataStore) List(ctx context.Context) ([]*model.BlobMetadata, error) {
	s.mu.RLock()
	out := make([]*model.BlobMetadata, 0, len(s.blobs))
	for _, meta := range s.blobs {
		out = append(out, meta.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].BlobID < out[j].BlobID })
	return out, nil
}

// AddReplica implements MetadataStore.
func (s *SnapshotMetadataStore) AddReplica(ctx context.Context, blobID string, chunkIndex int, endpoint string) (int, bool, error) {
	s.mu.Lock()
	meta, ok := s.blobs[blobID]
	if !ok {
		s.mu.Unlock()
		return 0, false, ErrNotFound
	}
	if meta.HasReplica(chunkIndex, endpoint) {
		s.mu.Unlock()
		return 0, false, nil
	}
	slot := meta.NextSlot(chunkIndex)
	meta.Replicas = append(meta.Replicas, model.ReplicaLocation{
		ChunkIndex:   chunkIndex,
		NodeEndpoint: endpoint,
		Slot:         slot,
	})
	s.mu.Unlock()

	return slot, true, s.persist(ctx)
}

// RemoveReplica implements MetadataStore.
func (s *SnapshotMetadataStore) RemoveReplica(ctx context.Context, blobID string, chunkIndex int, endpoint string) (bool, error) {
	s.mu.Lock()
	meta, ok := s.blobs[blobID]
	if !ok {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	kept := meta.Replicas[:0]
	removed := false
	for _, r := range meta.Replicas {
		if r.ChunkIndex == chunkIndex && r.NodeEndpoint == endpoint {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	meta.Replicas = kept
	s.mu.Unlock()

	if !removed {
		return false, nil
	}
	return true, s.persist(ctx)
}

// UpdateReplicaLocation implements MetadataStore. When newEndpoint already holds
// the chunk the old location is dropped instead, so no duplicate appears.
func (s *SnapshotMetadataStore) UpdateReplicaLocation(ctx context.Context, blobID string, chunkIndex int, oldEndpoint, newEndpoint string) error {
	s.mu.Lock()
	meta, ok := s.blobs[blobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	pos := -1
	for i, r := range meta.Replicas {
		if r.ChunkIndex == chunkIndex && r.NodeEndpoint == oldEndpoint {
			pos = i
			break
		}
	}
	if pos < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}

	if meta.HasReplica(chunkIndex, newEndpoint) {
		meta.Replicas = append(meta.Replicas[:pos], meta.Replicas[pos+1:]...)
	} else {
		meta.Replicas[pos].NodeEndpoint = newEndpoint
	}
	s.mu.Unlock()

	return s.persist(ctx)
}

// Ping checks the snapshot backend.
func (s *SnapshotMetadataStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close closes the snapshot backend.
func (s *SnapshotMetadataStore) Close() error {
	return s.backend.Close()
}

func (s *SnapshotMetadataStore) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	snap := make(Snapshot, len(s.blobs))
	for id, meta := range s.blobs {
		snap[id] = meta.Clone()
	}
	s.mu.RUnlock()

	start := time.Now()
	err := s.backend.Save(ctx, snap)
	if s.observer != nil {
		s.observer.RecordSnapshotSave(time.Since(start), len(snap), err)
	}
	if err != nil {
		s.logger.Error("Failed to persist metadata snapshot",
			zap.Int("blobs", len(snap)),
			zap.Error(err))
		return fmt.Errorf("failed to persist metadata snapshot: %w", err)
	}
	return nil
}
