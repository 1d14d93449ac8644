package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// BadgerSnapshotStore keeps the snapshot under key snapshot/<coordinator id>.
type BadgerSnapshotStore struct {
	db  *badger.DB
	key []byte
	id  string
}

// badgerLogger routes badger's logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }

// NewBadgerSnapshotStore opens a badger database in dir.
func NewBadgerSnapshotStore(dir, coordinatorID string, logger *zap.Logger) (*BadgerSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create badger dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{s: logger.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING).
		WithMemTableSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerSnapshotStore{
		db:  db,
		key: []byte("snapshot/" + coordinatorID),
		id:  coordinatorID,
	}, nil
}

// Load reads the snapshot. A missing key yields an empty snapshot.
func (s *BadgerSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read badger snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save rewrites the snapshot key.
func (s *BadgerSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(s.id, snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	})
}

// Ping reports whether the database is open.
func (s *BadgerSnapshotStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerSnapshotStore) Close() error {
	return s.db.Close()
}
