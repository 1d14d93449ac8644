package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("snapshots")

// BoltSnapshotStore keeps the snapshot under one key in a bbolt database.
type BoltSnapshotStore struct {
	db  *bolt.DB
	key []byte
}

// NewBoltSnapshotStore opens (or creates) the bolt database at path.
func NewBoltSnapshotStore(path, coordinatorID string) (*BoltSnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bolt bucket: %w", err)
	}
	return &BoltSnapshotStore{db: db, key: []byte(coordinatorID)}, nil
}

// Load reads the snapshot. A missing key yields an empty snapshot.
func (s *BoltSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(snapshotBucket).Get(s.key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read bolt snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save rewrites the snapshot key in a single transaction.
func (s *BoltSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(string(s.key), snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put(s.key, data)
	})
}

// Ping runs an empty read transaction.
func (s *BoltSnapshotStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the database.
func (s *BoltSnapshotStore) Close() error {
	return s.db.Close()
}
