package service

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/coordinator/internal/store"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeNodes is an in-memory chunk store for a set of node endpoints.
type fakeNodes struct {
	mu          sync.Mutex
	chunks      map[string]map[chunkKey][]byte
	unreachable map[string]bool
	failDeletes map[string]bool
	existsCalls int
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{
		chunks:      make(map[string]map[chunkKey][]byte),
		unreachable: make(map[string]bool),
		failDeletes: make(map[string]bool),
	}
}

func (f *fakeNodes) put(endpoint, blobID string, idx int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunks[endpoint] == nil {
		f.chunks[endpoint] = make(map[chunkKey][]byte)
	}
	f.chunks[endpoint][chunkKey{blobID, idx}] = append([]byte(nil), data...)
}

func (f *fakeNodes) remove(endpoint, blobID string, idx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks[endpoint], chunkKey{blobID, idx})
}

func (f *fakeNodes) has(endpoint, blobID string, idx int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.chunks[endpoint][chunkKey{blobID, idx}]
	return ok
}

func (f *fakeNodes) setUnreachable(endpoint string, down bool) {
	f.mu.Lock()
	f.unreachable[endpoint] = down
	f.mu.Unlock()
}

func (f *fakeNodes) check(endpoint string) error {
	if f.unreachable[endpoint] {
		return apierrors.TransientNetwork(errors.New("connection refused"), "node %s unreachable", endpoint)
	}
	return nil
}

func (f *fakeNodes) Exists(ctx context.Context, endpoint, blobID string, chunkIndex int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if err := f.check(endpoint); err != nil {
		return false, err
	}
	_, ok := f.chunks[endpoint][chunkKey{blobID, chunkIndex}]
	return ok, nil
}

func (f *fakeNodes) Read(ctx context.Context, endpoint, blobID string, chunkIndex int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(endpoint); err != nil {
		return nil, err
	}
	data, ok := f.chunks[endpoint][chunkKey{blobID, chunkIndex}]
	if !ok {
		return nil, apierrors.NotFound("chunk not found")
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeNodes) Write(ctx context.Context, endpoint, blobID string, chunkIndex int, data []byte) error {
	f.mu.Lock()
	err := f.check(endpoint)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.put(endpoint, blobID, chunkIndex, data)
	return nil
}

func (f *fakeNodes) Delete(ctx context.Context, endpoint, blobID string, chunkIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(endpoint); err != nil {
		return err
	}
	if f.failDeletes[endpoint] {
		return apierrors.Internal(errors.New("disk error"), "delete failed")
	}
	delete(f.chunks[endpoint], chunkKey{blobID, chunkIndex})
	return nil
}

func (f *fakeNodes) Inventory(ctx context.Context, endpoint string) (api.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(endpoint); err != nil {
		return nil, err
	}
	inv := api.Inventory{}
	for key := range f.chunks[endpoint] {
		inv[key.blobID] = append(inv[key.blobID], key.chunkIndex)
	}
	for blobID := range inv {
		sort.Ints(inv[blobID])
	}
	return inv, nil
}

// MockChunkClient is a mock implementation of ChunkClient
type MockChunkClient struct {
	mock.Mock
}

func (m *MockChunkClient) Exists(ctx context.Context, endpoint, blobID string, chunkIndex int) (bool, error) {
	args := m.Called(ctx, endpoint, blobID, chunkIndex)
	return args.Bool(0), args.Error(1)
}

func (m *MockChunkClient) Read(ctx context.Context, endpoint, blobID string, chunkIndex int) ([]byte, error) {
	args := m.Called(ctx, endpoint, blobID, chunkIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockChunkClient) Write(ctx context.Context, endpoint, blobID string, chunkIndex int, data []byte) error {
	args := m.Called(ctx, endpoint, blobID, chunkIndex, data)
	return args.Error(0)
}

func (m *MockChunkClient) Delete(ctx context.Context, endpoint, blobID string, chunkIndex int) error {
	args := m.Called(ctx, endpoint, blobID, chunkIndex)
	return args.Error(0)
}

func (m *MockChunkClient) Inventory(ctx context.Context, endpoint string) (api.Inventory, error) {
	args := m.Called(ctx, endpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(api.Inventory), args.Error(1)
}

// testCluster wires the coordinator services against in-memory nodes and a
// file snapshot in a temp dir.
type testCluster struct {
	clock      *fakeClock
	membership *MembershipService
	store      *store.SnapshotMetadataStore
	nodes      *fakeNodes
	placement  *PlacementService
	blobs      *BlobService
	monitor    *IntegrityMonitor
}

func testIntegrityConfig() config.IntegrityConfig {
	return config.IntegrityConfig{
		Workers: 2,
		StaleCleanup: config.StaleCleanupConfig{
			Policy:      config.StalePolicyAggressive,
			GracePeriod: 10 * time.Minute,
		},
	}
}

func newTestCluster(t *testing.T, rf, chunkSize int, chunks ChunkClient) *testCluster {
	return newTestClusterWithConfig(t, rf, chunkSize, chunks, testIntegrityConfig())
}

func newTestClusterWithConfig(t *testing.T, rf, chunkSize int, chunks ChunkClient, cfg config.IntegrityConfig) *testCluster {
	t.Helper()
	logger := zap.NewNop()
	clock := newFakeClock()

	backend := store.NewFileSnapshotStore(filepath.Join(t.TempDir(), "blobs.json"), "test-coordinator")
	metaStore, err := store.NewSnapshotMetadataStore(context.Background(), backend, nil, logger)
	require.NoError(t, err)

	membership := NewMembershipService(30*time.Second, nil, logger)
	membership.SetClock(clock.Now)

	placement := NewPlacementService(rf, chunkSize)
	nodes, _ := chunks.(*fakeNodes)

	monitor := NewIntegrityMonitor(metaStore, membership, placement, chunks, nil, cfg, rf, nil, logger)
	monitor.now = clock.Now
	t.Cleanup(monitor.Stop)

	return &testCluster{
		clock:      clock,
		membership: membership,
		store:      metaStore,
		nodes:      nodes,
		placement:  placement,
		blobs:      NewBlobService(metaStore, membership, placement, chunkSize, rf, nil, logger),
		monitor:    monitor,
	}
}

func (c *testCluster) heartbeat(t *testing.T, endpoints ...string) {
	t.Helper()
	for _, endpoint := range endpoints {
		require.NoError(t, c.membership.Heartbeat(&api.HeartbeatRequest{URL: endpoint, NodeID: endpoint, Status: "healthy"}))
	}
}

// upload plans a blob and writes every planned replica to the fake nodes.
func (c *testCluster) upload(t *testing.T, blobID string, data []byte) *model.BlobMetadata {
	t.Helper()
	meta, err := c.blobs.PlanUpload(context.Background(), blobID, int64(len(data)))
	require.NoError(t, err)
	for _, loc := range meta.Replicas {
		start := loc.ChunkIndex * meta.ChunkSize
		end := start + meta.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		c.nodes.put(loc.NodeEndpoint, blobID, loc.ChunkIndex, data[start:end])
	}
	return meta
}

func (c *testCluster) meta(t *testing.T, blobID string) *model.BlobMetadata {
	t.Helper()
	meta, err := c.store.Get(context.Background(), blobID)
	require.NoError(t, err)
	return meta
}

func endpointsOf(locs []model.ReplicaLocation) []string {
	out := make([]string, len(locs))
	for i, loc := range locs {
		out[i] = loc.NodeEndpoint
	}
	sort.Strings(out)
	return out
}

func newEnabledProbeCache(t *testing.T) *store.ProbeCache {
	t.Helper()
	cache := store.NewProbeCache(time.Minute)
	t.Cleanup(cache.Stop)
	return cache
}
