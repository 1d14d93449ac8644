package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/storage-node/internal/errors"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/storage/chunkstore"
	"github.com/devrev/pairfs/storage-node/internal/storage/diskmanager"
	"github.com/devrev/pairfs/storage-node/internal/validation"
)

type fakeDisk struct {
	mu   sync.Mutex
	full bool
}

func (d *fakeDisk) setFull(full bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.full = full
}

func (d *fakeDisk) CheckBeforeWrite(estimatedBytes uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return errors.DiskFull(99, 0)
	}
	return nil
}

func (d *fakeDisk) GetDiskUsage() diskmanager.DiskUsageStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return diskmanager.DiskUsageStats{UsagePercent: 99, IsCircuitBroken: true}
	}
	return diskmanager.DiskUsageStats{UsagePercent: 42}
}

type staticPeers []api.PeerInfo

func (p staticPeers) Peers() []api.PeerInfo { return p }

func newTestChunkService(t *testing.T, disk DiskGuard) (*ChunkService, *chunkstore.Store, *metrics.Metrics) {
	t.Helper()
	store, err := chunkstore.Open(t.TempDir(), false, zap.NewNop())
	require.NoError(t, err)
	m := metrics.NewMetrics(prometheus.NewRegistry(), "cs-test")
	svc := NewChunkService("cs-test", store, validation.NewValidator(64), disk, m, zap.NewNop())
	return svc, store, m
}

func TestChunkServiceLifecycle(t *testing.T) {
	svc, _, _ := newTestChunkService(t, &fakeDisk{})
	ctx := context.Background()

	require.NoError(t, svc.Write(ctx, "doc", 0, []byte("chunk-0")))
	require.NoError(t, svc.Write(ctx, "doc", 1, []byte("chunk-1")))

	data, err := svc.Read(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-1"), data)

	ok, err := svc.Exists(ctx, "doc", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	inv, err := svc.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.Inventory{"doc": {0, 1}}, inv)

	require.NoError(t, svc.Delete(ctx, "doc", 0))
	require.NoError(t, svc.Delete(ctx, "doc", 0))

	ok, err = svc.Exists(ctx, "doc", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Read(ctx, "doc", 0)
	assert.Equal(t, errors.ErrCodeChunkNotFound, errors.GetCode(err))
}

func TestChunkServiceValidation(t *testing.T) {
	svc, _, _ := newTestChunkService(t, nil)
	ctx := context.Background()

	err := svc.Write(ctx, "", 0, []byte("x"))
	assert.Equal(t, errors.ErrCodeInvalidBlobID, errors.GetCode(err))

	err = svc.Write(ctx, "../etc", 0, []byte("x"))
	assert.Equal(t, errors.ErrCodeInvalidBlobID, errors.GetCode(err))

	err = svc.Write(ctx, "doc", 0, make([]byte, 65))
	assert.Equal(t, errors.ErrCodeChunkTooLarge, errors.GetCode(err))

	_, err = svc.Read(ctx, "doc", -1)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	_, err = svc.Exists(ctx, "a/b", 0)
	assert.Error(t, err)
}

func TestChunkServiceDiskFull(t *testing.T) {
	disk := &fakeDisk{full: true}
	svc, _, m := newTestChunkService(t, disk)
	ctx := context.Background()

	err := svc.Write(ctx, "doc", 0, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDiskFull, errors.GetCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiskFullRejections))

	ok, err := svc.Exists(ctx, "doc", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	disk.setFull(false)
	assert.NoError(t, svc.Write(ctx, "doc", 0, []byte("x")))
}

func TestChunkServiceCorruptedRead(t *testing.T) {
	svc, store, m := newTestChunkService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Write(ctx, "doc", 0, []byte("payload")))
	path := filepath.Join(store.Dir(), chunkstore.FileName("doc", 0))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = svc.Read(ctx, "doc", 0)
	assert.Equal(t, errors.ErrCodeChecksumFailed, errors.GetCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksumFailures))
}

func TestChunkServiceCancelledWrite(t *testing.T) {
	svc, _, _ := newTestChunkService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Write(ctx, "doc", 0, []byte("x"))
	assert.Equal(t, errors.ErrCodeUnavailable, errors.GetCode(err))
}

func TestChunkServiceNodeStats(t *testing.T) {
	svc, _, m := newTestChunkService(t, &fakeDisk{})
	ctx := context.Background()

	require.NoError(t, svc.Write(ctx, "a", 0, []byte("1234")))
	require.NoError(t, svc.Write(ctx, "b", 3, []byte("12345678")))
	svc.SetPeerSource(staticPeers{{NodeID: "cs-2", URL: "http://cs-2:9001", TotalChunks: 5}})

	stats, err := svc.NodeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cs-test", stats.NodeID)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.InDelta(t, float64(4+8+8)/(1024*1024), stats.StorageUsedMB, 1e-12)
	assert.Equal(t, 42.0, stats.DiskUsage)
	require.Len(t, stats.Peers, 1)
	assert.Equal(t, "cs-2", stats.Peers[0].NodeID)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksStored))
}
