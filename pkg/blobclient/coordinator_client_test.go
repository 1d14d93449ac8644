package blobclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

func TestCoordinatorClientPlanAndMetadata(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/plan-upload", func(w http.ResponseWriter, r *http.Request) {
		var req api.PlanUploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(api.PlanUploadResponse{
			BlobID: req.BlobID, Size: req.Size, ChunkSize: 4, ReplicationFactor: 3,
			Chunks: []api.ChunkPlacement{{ChunkIndex: 0, NodeEndpoint: "n1", ReplicaIndex: 0}},
		})
	}).Methods(http.MethodPost)
	router.HandleFunc("/metadata/{blobId}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.BlobMetadataResponse{BlobID: mux.Vars(r)["blobId"], Size: 3})
	}).Methods(http.MethodGet)

	srv := httptest.NewServer(router)
	defer srv.Close()

	c := NewCoordinatorClient(srv.URL, zap.NewNop())

	plan, err := c.PlanUpload(context.Background(), "a b", 3)
	require.NoError(t, err)
	assert.Equal(t, "a b", plan.BlobID)
	assert.Equal(t, 4, plan.ChunkSize)
	require.Len(t, plan.Chunks, 1)

	meta, err := c.GetMetadata(context.Background(), "a b")
	require.NoError(t, err)
	assert.Equal(t, "a b", meta.BlobID)
}

func TestCoordinatorClientRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(api.StatusResponse{TotalNodes: 2, HealthyNodes: 2})
	}))
	defer srv.Close()

	c := NewCoordinatorClient(srv.URL, zap.NewNop(), WithRetries(3, time.Millisecond))
	status, err := c.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, status.HealthyNodes)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCoordinatorClientDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","error_code":"NOT_FOUND","message":"blob x not found"}`))
	}))
	defer srv.Close()

	c := NewCoordinatorClient(srv.URL, zap.NewNop(), WithRetries(3, time.Millisecond))
	_, err := c.GetMetadata(context.Background(), "x")

	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))
	assert.Equal(t, "blob x not found", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoordinatorClientPlanDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewCoordinatorClient(srv.URL, zap.NewNop(), WithRetries(3, time.Millisecond))
	_, err := c.PlanUpload(context.Background(), "x", 1)

	assert.True(t, apierrors.Is(err, apierrors.KindUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}
