package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
)

func TestEmbeddedSnapshotBackends(t *testing.T) {
	tests := []struct {
		name string
		open func(t *testing.T, dir string) SnapshotStore
	}{
		{
			name: "file",
			open: func(t *testing.T, dir string) SnapshotStore {
				return NewFileSnapshotStore(filepath.Join(dir, "meta", "blobs.json"), "coord-1")
			},
		},
		{
			name: "bolt",
			open: func(t *testing.T, dir string) SnapshotStore {
				s, err := NewBoltSnapshotStore(filepath.Join(dir, "blobs.db"), "coord-1")
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "badger",
			open: func(t *testing.T, dir string) SnapshotStore {
				s, err := NewBadgerSnapshotStore(filepath.Join(dir, "badger"), "coord-1", zap.NewNop())
				require.NoError(t, err)
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			backend := tt.open(t, dir)
			empty, err := backend.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)
			require.NoError(t, backend.Ping(ctx))

			store, err := NewSnapshotMetadataStore(ctx, backend, nil, zap.NewNop())
			require.NoError(t, err)
			require.NoError(t, store.Put(ctx, sampleBlob("doc")))
			_, _, err = store.AddReplica(ctx, "doc", 1, "c")
			require.NoError(t, err)
			require.NoError(t, backend.Close())

			// a fresh store over the same artifact sees the prior state
			reopened := tt.open(t, dir)
			defer reopened.Close()
			fresh, err := NewSnapshotMetadataStore(ctx, reopened, nil, zap.NewNop())
			require.NoError(t, err)

			meta, err := fresh.Get(ctx, "doc")
			require.NoError(t, err)
			assert.Equal(t, int64(10), meta.Size)
			assert.Equal(t, 4, meta.ChunkSize)
			assert.Len(t, meta.Replicas, 4)
			assert.True(t, meta.HasReplica(1, "c"))
			assert.True(t, sampleBlob("doc").CreatedAt.Equal(meta.CreatedAt))
		})
	}
}

func TestFileSnapshotLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSnapshotStore(filepath.Join(dir, "blobs.json"), "coord-1")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(context.Background(), Snapshot{"doc": sampleBlob("doc")}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blobs.json", entries[0].Name())
}

func TestFileSnapshotCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileSnapshotStore(path, "coord-1").Load(context.Background())
	assert.Error(t, err)
}

func TestNewSnapshotStoreFactory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig().Snapshot
	cfg.Path = filepath.Join(dir, "blobs.json")

	s, err := NewSnapshotStore(cfg, "coord-1", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileSnapshotStore{}, s)

	cfg.Backend = config.BackendBolt
	cfg.BoltPath = filepath.Join(dir, "blobs.db")
	s, err = NewSnapshotStore(cfg, "coord-1", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &BoltSnapshotStore{}, s)
	require.NoError(t, s.Close())

	cfg.Backend = "zookeeper"
	_, err = NewSnapshotStore(cfg, "coord-1", zap.NewNop())
	assert.Error(t, err)
}
