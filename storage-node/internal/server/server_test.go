package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/chunkclient"
	"github.com/devrev/pairfs/storage-node/internal/config"
	"github.com/devrev/pairfs/storage-node/internal/health"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/service"
	"github.com/devrev/pairfs/storage-node/internal/storage/chunkstore"
	"github.com/devrev/pairfs/storage-node/internal/storage/diskmanager"
	"github.com/devrev/pairfs/storage-node/internal/validation"
)

type staticDisk diskmanager.DiskUsageStats

func (d staticDisk) GetDiskUsage() diskmanager.DiskUsageStats { return diskmanager.DiskUsageStats(d) }

func newTestNode(t *testing.T) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	dir := t.TempDir()
	store, err := chunkstore.Open(dir, false, zap.NewNop())
	require.NoError(t, err)

	m := metrics.NewMetrics(prometheus.NewRegistry(), "cs-test")
	chunks := service.NewChunkService("cs-test", store, validation.NewValidator(1024), nil, m, zap.NewNop())
	hc := health.NewHealthChecker("cs-test", dir, nil, zap.NewNop())

	cfg := &config.Config{Server: config.ServerConfig{RequestTimeout: 5 * time.Second}}
	srv := NewServer(cfg, chunks, hc, m, zap.NewNop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, m
}

func TestChunkAPIRoundTrip(t *testing.T) {
	ts, _ := newTestNode(t)
	client := chunkclient.New(nil, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, client.Write(ctx, ts.URL, "report", 0, []byte("first")))
	require.NoError(t, client.Write(ctx, ts.URL, "report", 1, []byte("second")))

	data, err := client.Read(ctx, ts.URL, "report", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	ok, err := client.Exists(ctx, ts.URL, "report", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	inv, err := client.Inventory(ctx, ts.URL)
	require.NoError(t, err)
	assert.Equal(t, api.Inventory{"report": {0, 1}}, inv)

	stats, err := client.Stats(ctx, ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "cs-test", stats.NodeID)
	assert.Equal(t, 2, stats.TotalChunks)

	require.NoError(t, client.Delete(ctx, ts.URL, "report", 0))
	require.NoError(t, client.Delete(ctx, ts.URL, "report", 0))

	ok, err = client.Exists(ctx, ts.URL, "report", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.Read(ctx, ts.URL, "report", 0)
	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))
}

func TestChunkAPIAcceptsLegacyPdfID(t *testing.T) {
	ts, _ := newTestNode(t)

	body, err := json.Marshal(map[string]interface{}{
		"pdfId":      "legacy",
		"chunkIndex": 3,
		"data":       []byte("old client"),
	})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/chunk/write", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/chunk/read?pdfId=legacy&chunkIndex=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.ReadChunkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "legacy", got.BlobID)
	assert.Equal(t, 3, got.ChunkIndex)
	assert.Equal(t, []byte("old client"), got.Data)
	assert.Equal(t, len("old client"), got.Size)
}

func TestChunkAPIErrors(t *testing.T) {
	ts, _ := newTestNode(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   apierrors.Kind
	}{
		{"missing blob id", http.MethodGet, "/chunk/read?chunkIndex=0", "", http.StatusBadRequest, apierrors.KindBadRequest},
		{"missing index", http.MethodGet, "/chunk/exists?blobId=a", "", http.StatusBadRequest, apierrors.KindBadRequest},
		{"bad index", http.MethodGet, "/chunk/read?blobId=a&chunkIndex=x", "", http.StatusBadRequest, apierrors.KindBadRequest},
		{"negative index", http.MethodGet, "/chunk/read?blobId=a&chunkIndex=-1", "", http.StatusBadRequest, apierrors.KindBadRequest},
		{"traversal", http.MethodDelete, "/chunk/delete?blobId=..&chunkIndex=0", "", http.StatusBadRequest, apierrors.KindBadRequest},
		{"bad json", http.MethodPost, "/chunk/write", "{", http.StatusBadRequest, apierrors.KindBadRequest},
		{"too large", http.MethodPost, "/chunk/write", `{"blobId":"a","chunkIndex":0,"data":"` + bigPayload() + `"}`, http.StatusBadRequest, apierrors.KindBadRequest},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound, apierrors.KindNotFound},
		{"wrong method", http.MethodGet, "/chunk/write", "", http.StatusMethodNotAllowed, apierrors.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body apierrors.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.ErrorCode)
		})
	}
}

func bigPayload() string {
	raw, _ := json.Marshal(make([]byte, 2048))
	return string(raw[1 : len(raw)-1])
}

func TestHealthRoutes(t *testing.T) {
	ts, _ := newTestNode(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRequestsAreCounted(t *testing.T) {
	ts, m := newTestNode(t)

	resp, err := http.Get(ts.URL + "/chunk/inventory")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestMetricsServerUpdatesSystemGauges(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry(), "cs-test")
	disk := staticDisk{UsagePercent: 61.5, AvailableBytes: 4096}
	ms := NewMetricsServer(&MetricsServerConfig{Port: 0}, m, disk, zap.NewNop())

	ms.updateSystemMetrics()

	assert.Equal(t, 61.5, testutil.ToFloat64(m.DiskUsagePercent))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.DiskAvailableBytes))
	assert.Greater(t, testutil.ToFloat64(m.GoroutinesTotal), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.MemoryUsageBytes), 0.0)
}
