package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/pkg/apierrors"
)

func TestRepairRecopiesMissingChunk(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.remove("http://b", "doc", 0)

	res, err := c.monitor.RunPass(context.Background(), PassRepair)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Repaired)
	assert.Zero(t, res.Unresolved)
	assert.True(t, c.nodes.has("http://b", "doc", 0))
}

func TestRepairWithoutSourceIsUnresolved(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.remove("http://a", "doc", 0)
	c.nodes.remove("http://b", "doc", 0)

	res, err := c.monitor.RunPass(context.Background(), PassRepair)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Unresolved)
	assert.Zero(t, res.Repaired)
	assert.Equal(t, int64(2), c.monitor.Stats().TotalUnresolved)
}

func TestRepairRelocatesReplicaFromDeadNode(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.heartbeat(t, "http://c")

	before := c.meta(t, "doc").ReplicasByChunk()[0]
	require.Equal(t, "http://a", before[0].NodeEndpoint)

	// a stops heartbeating
	c.clock.Advance(31 * time.Second)
	c.heartbeat(t, "http://b", "http://c")
	c.nodes.setUnreachable("http://a", true)

	res, err := c.monitor.RunPass(context.Background(), PassRepair)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Relocated)

	after := c.meta(t, "doc").ReplicasByChunk()[0]
	assert.Equal(t, []string{"http://b", "http://c"}, endpointsOf(after))
	for _, loc := range after {
		if loc.NodeEndpoint == "http://c" {
			assert.Equal(t, 0, loc.Slot, "relocation keeps the slot")
		}
	}
	assert.True(t, c.nodes.has("http://c", "doc", 0))
	assert.Equal(t, int64(1), c.monitor.Stats().TotalRelocations)
}

func TestReplicationRestoresFactor(t *testing.T) {
	c := newTestCluster(t, 3, 4, newFakeNodes())
	c.heartbeat(t, "http://a")
	c.upload(t, "doc", []byte("0123456789"))
	c.heartbeat(t, "http://b", "http://c")

	res, err := c.monitor.RunPass(context.Background(), PassReplication)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 6, res.Created)

	meta := c.meta(t, "doc")
	for idx := 0; idx < 3; idx++ {
		replicas := meta.ReplicasByChunk()[idx]
		assert.Equal(t, []string{"http://a", "http://b", "http://c"}, endpointsOf(replicas), "chunk %d", idx)
		slots := map[int]bool{}
		for _, loc := range replicas {
			slots[loc.Slot] = true
			assert.True(t, c.nodes.has(loc.NodeEndpoint, "doc", idx))
		}
		assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, slots)
	}

	// a second run finds nothing to do
	res, err = c.monitor.RunPass(context.Background(), PassReplication)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Zero(t, res.Removed)
}

func TestReplicationRemovesHighestSlotsFirst(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b", "http://c")
	require.NoError(t, c.store.Put(context.Background(), &model.BlobMetadata{
		BlobID: "doc", Size: 4, ChunkSize: 4,
		Replicas: []model.ReplicaLocation{
			{ChunkIndex: 0, NodeEndpoint: "http://c", Slot: 0},
			{ChunkIndex: 0, NodeEndpoint: "http://a", Slot: 1},
			{ChunkIndex: 0, NodeEndpoint: "http://b", Slot: 2},
		},
	}))
	for _, ep := range []string{"http://a", "http://b", "http://c"} {
		c.nodes.put(ep, "doc", 0, []byte("abcd"))
	}

	res, err := c.monitor.RunPass(context.Background(), PassReplication)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	assert.Equal(t, []string{"http://a", "http://c"}, endpointsOf(c.meta(t, "doc").Replicas))
	assert.False(t, c.nodes.has("http://b", "doc", 0))
}

func TestReplicationKeepsMetadataWhenDeleteFails(t *testing.T) {
	c := newTestCluster(t, 1, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	require.NoError(t, c.store.Put(context.Background(), &model.BlobMetadata{
		BlobID: "doc", Size: 4, ChunkSize: 4,
		Replicas: []model.ReplicaLocation{
			{ChunkIndex: 0, NodeEndpoint: "http://a", Slot: 0},
			{ChunkIndex: 0, NodeEndpoint: "http://b", Slot: 1},
		},
	}))
	c.nodes.put("http://a", "doc", 0, []byte("abcd"))
	c.nodes.put("http://b", "doc", 0, []byte("abcd"))
	c.nodes.failDeletes["http://b"] = true

	res, err := c.monitor.RunPass(context.Background(), PassReplication)
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
	assert.Equal(t, 1, res.Unresolved)
	assert.Len(t, c.meta(t, "doc").Replicas, 2)
}

func TestReplicationFallsBackToListedNodeMissingChunk(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.remove("http://b", "doc", 0)

	res, err := c.monitor.RunPass(context.Background(), PassReplication)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.True(t, c.nodes.has("http://b", "doc", 0))

	meta := c.meta(t, "doc")
	assert.Len(t, meta.Replicas, 2, "no duplicate location")
}

func TestReplicationSkipsChunkWithoutSource(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.remove("http://a", "doc", 0)
	c.nodes.remove("http://b", "doc", 0)

	res, err := c.monitor.RunPass(context.Background(), PassReplication)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Len(t, c.meta(t, "doc").Replicas, 2)
}

func TestStaleCleanupAggressive(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))

	c.clock.Advance(31 * time.Second)
	c.heartbeat(t, "http://b")
	c.nodes.setUnreachable("http://a", true)

	res, err := c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{"http://b"}, endpointsOf(c.meta(t, "doc").Replicas))
}

func TestStaleCleanupKeepsConfirmedReplica(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))

	// a is silent but still answers and holds the chunk
	c.clock.Advance(31 * time.Second)
	c.heartbeat(t, "http://b")

	res, err := c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Zero(t, res.Removed)
	assert.Len(t, c.meta(t, "doc").Replicas, 2)
}

func TestStaleCleanupGracePolicy(t *testing.T) {
	cfg := testIntegrityConfig()
	cfg.StaleCleanup.Policy = config.StalePolicyGrace
	c := newTestClusterWithConfig(t, 2, 4, newFakeNodes(), cfg)
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.setUnreachable("http://a", true)

	c.clock.Advance(31 * time.Second)
	c.heartbeat(t, "http://b")
	res, err := c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Zero(t, res.Removed, "recently failed node keeps its replicas")

	c.clock.Advance(10 * time.Minute)
	c.heartbeat(t, "http://b")
	res, err = c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
}

func TestStaleCleanupGraceCountsFromUnhealthy(t *testing.T) {
	cfg := testIntegrityConfig()
	cfg.StaleCleanup.Policy = config.StalePolicyGrace
	c := newTestClusterWithConfig(t, 2, 4, newFakeNodes(), cfg)
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.setUnreachable("http://a", true)

	// silent for 10m20s, unhealthy for only 9m50s
	c.clock.Advance(10*time.Minute + 20*time.Second)
	c.heartbeat(t, "http://b")
	res, err := c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Zero(t, res.Removed)

	c.clock.Advance(20 * time.Second)
	c.heartbeat(t, "http://b")
	res, err = c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
}

func TestStaleCleanupDisabled(t *testing.T) {
	cfg := testIntegrityConfig()
	cfg.StaleCleanup.Policy = config.StalePolicyDisabled
	c := newTestClusterWithConfig(t, 2, 4, newFakeNodes(), cfg)
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))
	c.nodes.setUnreachable("http://a", true)

	c.clock.Advance(time.Hour)
	c.heartbeat(t, "http://b")
	res, err := c.monitor.RunPass(context.Background(), PassStale)
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
	assert.Len(t, c.meta(t, "doc").Replicas, 2)
}

func TestOrphanGC(t *testing.T) {
	c := newTestCluster(t, 2, 4, newFakeNodes())
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcdefgh"))
	c.nodes.put("http://a", "ghost", 0, []byte("boo"))
	c.nodes.put("http://b", "doc", 7, []byte("late"))

	res, err := c.monitor.RunPass(context.Background(), PassGC)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)

	assert.False(t, c.nodes.has("http://a", "ghost", 0))
	assert.False(t, c.nodes.has("http://b", "doc", 7))
	for _, ep := range []string{"http://a", "http://b"} {
		assert.True(t, c.nodes.has(ep, "doc", 0))
		assert.True(t, c.nodes.has(ep, "doc", 1))
	}
	assert.Equal(t, int64(2), c.monitor.Stats().TotalGarbageCollected)
}

func TestOrphanGCReclaimsDeletedBlob(t *testing.T) {
	c := newTestCluster(t, 1, 4, newFakeNodes())
	c.heartbeat(t, "http://a")
	c.upload(t, "doc", []byte("abcd"))
	require.NoError(t, c.blobs.DeleteBlob(context.Background(), "doc"))

	res, err := c.monitor.RunPass(context.Background(), PassGC)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.False(t, c.nodes.has("http://a", "doc", 0))
}

func TestOrphanGCSkipsUnreachableNode(t *testing.T) {
	chunks := new(MockChunkClient)
	c := newTestCluster(t, 1, 4, chunks)
	c.heartbeat(t, "http://a")

	chunks.On("Inventory", mock.Anything, "http://a").Return(nil, apierrors.TransientNetwork(errors.New("refused"), "inventory failed"))

	res, err := c.monitor.RunPass(context.Background(), PassGC)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unresolved)
	chunks.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProbeCacheAvoidsRepeatedExistsCalls(t *testing.T) {
	nodes := newFakeNodes()
	c := newTestCluster(t, 2, 4, nodes)
	c.monitor.probes.Stop()
	c.monitor.probes = newEnabledProbeCache(t)
	c.heartbeat(t, "http://a", "http://b")
	c.upload(t, "doc", []byte("abcd"))

	_, err := c.monitor.RunPass(context.Background(), PassRepair)
	require.NoError(t, err)
	first := nodes.existsCalls

	_, err = c.monitor.RunPass(context.Background(), PassRepair)
	require.NoError(t, err)
	assert.Equal(t, first, nodes.existsCalls)
}

func TestRunPassRejectsUnknownAndOverlapping(t *testing.T) {
	c := newTestCluster(t, 1, 4, newFakeNodes())

	_, err := c.monitor.RunPass(context.Background(), "defrag")
	assert.True(t, apierrors.Is(err, apierrors.KindBadRequest))

	atomic.StoreInt32(c.monitor.running[PassGC], 1)
	_, err = c.monitor.RunPass(context.Background(), PassGC)
	assert.True(t, apierrors.Is(err, apierrors.KindUnavailable))
	atomic.StoreInt32(c.monitor.running[PassGC], 0)

	_, err = c.monitor.RunPass(context.Background(), PassGC)
	assert.NoError(t, err)
}

func TestMonitorStartStop(t *testing.T) {
	cfg := testIntegrityConfig()
	cfg.RepairInterval = 10 * time.Millisecond
	cfg.ReplicationInterval = 10 * time.Millisecond
	cfg.StaleInterval = 10 * time.Millisecond
	cfg.GCInterval = 10 * time.Millisecond
	c := newTestClusterWithConfig(t, 1, 4, newFakeNodes(), cfg)
	c.heartbeat(t, "http://a")
	c.upload(t, "doc", []byte("abcd"))

	c.monitor.Start(context.Background())
	assert.Eventually(t, func() bool {
		return len(c.monitor.Stats().LastRun) == len(Passes)
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.monitor.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestNewIntegrityMonitorDefaults(t *testing.T) {
	m := NewIntegrityMonitor(nil, nil, NewPlacementService(3, 4), newFakeNodes(), nil, testIntegrityConfig(), 3, nil, zap.NewNop())
	defer m.Stop()
	assert.NotNil(t, m.probes)
	assert.Len(t, m.running, len(Passes))
	assert.Empty(t, m.Stats().LastRun)
}
