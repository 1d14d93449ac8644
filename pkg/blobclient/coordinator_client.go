// Package blobclient implements the client side of pairfs: splitting blobs into
// chunks, writing them to their replica sets and reassembling them on read.
package blobclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/transport"
)

// CoordinatorClient is the HTTP client for the coordinator API.
type CoordinatorClient struct {
	baseURL    string
	t          *transport.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// CoordinatorOption customizes a CoordinatorClient.
type CoordinatorOption func(*CoordinatorClient)

// WithRetries sets how many times idempotent reads are retried and the base backoff.
func WithRetries(maxRetries int, backoff time.Duration) CoordinatorOption {
	return func(c *CoordinatorClient) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(httpClient *http.Client, timeout time.Duration) CoordinatorOption {
	return func(c *CoordinatorClient) {
		c.t = transport.NewClient(httpClient, timeout)
	}
}

// NewCoordinatorClient creates a client for the coordinator at baseURL.
func NewCoordinatorClient(baseURL string, logger *zap.Logger, opts ...CoordinatorOption) *CoordinatorClient {
	c := &CoordinatorClient{
		baseURL:    transport.BaseURL(baseURL),
		t:          transport.NewClient(nil, 30*time.Second),
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PlanUpload requests a placement plan for a blob of the given size.
func (c *CoordinatorClient) PlanUpload(ctx context.Context, blobID string, size int64) (*api.PlanUploadResponse, error) {
	var plan api.PlanUploadResponse
	req := api.PlanUploadRequest{BlobID: blobID, Size: size}
	if err := c.t.PostJSON(ctx, c.baseURL+"/plan-upload", req, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetMetadata fetches the healthy view of a blob's metadata.
func (c *CoordinatorClient) GetMetadata(ctx context.Context, blobID string) (*api.BlobMetadataResponse, error) {
	var meta api.BlobMetadataResponse
	err := c.getWithRetry(ctx, c.baseURL+"/metadata/"+url.PathEscape(blobID), &meta)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListBlobs lists all blob metadata known to the coordinator.
func (c *CoordinatorClient) ListBlobs(ctx context.Context) ([]api.BlobMetadataResponse, error) {
	var blobs []api.BlobMetadataResponse
	if err := c.getWithRetry(ctx, c.baseURL+"/blobs", &blobs); err != nil {
		return nil, err
	}
	return blobs, nil
}

// DeleteBlob removes a blob's metadata.
func (c *CoordinatorClient) DeleteBlob(ctx context.Context, blobID string) error {
	return c.t.Delete(ctx, c.baseURL+"/blob/"+url.PathEscape(blobID), nil)
}

// Status returns the cluster status report.
func (c *CoordinatorClient) Status(ctx context.Context) (*api.StatusResponse, error) {
	var status api.StatusResponse
	if err := c.getWithRetry(ctx, c.baseURL+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// IntegrityStats returns the integrity monitor counters.
func (c *CoordinatorClient) IntegrityStats(ctx context.Context) (*api.IntegrityStatsResponse, error) {
	var stats api.IntegrityStatsResponse
	if err := c.getWithRetry(ctx, c.baseURL+"/integrity/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RunPass triggers one integrity pass (repair, replication, stale, gc) and waits for it.
func (c *CoordinatorClient) RunPass(ctx context.Context, pass string) (*api.PassResult, error) {
	var result api.PassResult
	if err := c.t.PostJSON(ctx, c.baseURL+"/integrity/run/"+strings.ToLower(pass), struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func retryable(err error) bool {
	kind := apierrors.KindOf(err)
	return kind == apierrors.KindTransientNetwork || kind == apierrors.KindUnavailable
}

func (c *CoordinatorClient) getWithRetry(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		lastErr = c.t.GetJSON(ctx, url, out)
		if lastErr == nil || !retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		c.logger.Debug("Coordinator request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return lastErr
}
