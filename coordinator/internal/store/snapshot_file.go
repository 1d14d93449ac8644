package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshotStore writes the snapshot to a single JSON file, replacing it
// atomically through a temp file and rename.
type FileSnapshotStore struct {
	path          string
	coordinatorID string
}

// NewFileSnapshotStore creates a file-backed snapshot store.
func NewFileSnapshotStore(path, coordinatorID string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path, coordinatorID: coordinatorID}
}

// Load reads the snapshot file. A missing file yields an empty snapshot.
func (s *FileSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}
	return decodeSnapshot(data)
}

// Save rewrites the snapshot file.
func (s *FileSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(s.coordinatorID, snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Ping verifies the snapshot directory is usable.
func (s *FileSnapshotStore) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir unavailable: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileSnapshotStore) Close() error {
	return nil
}
