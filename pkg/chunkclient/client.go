// Package chunkclient is the HTTP client for the storage node chunk API.
package chunkclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
	"github.com/devrev/pairfs/pkg/transport"
)

// Client talks to storage nodes. The node is addressed per call by endpoint.
type Client struct {
	t *transport.Client
}

// New creates a chunk client with the given per-call timeout.
func New(httpClient *http.Client, timeout time.Duration) *Client {
	return &Client{t: transport.NewClient(httpClient, timeout)}
}

func chunkURL(endpoint, op, blobID string, chunkIndex int) string {
	q := url.Values{}
	q.Set("blobId", blobID)
	q.Set("chunkIndex", strconv.Itoa(chunkIndex))
	return transport.BaseURL(endpoint) + "/chunk/" + op + "?" + q.Encode()
}

// Write stores a chunk on the node at endpoint.
func (c *Client) Write(ctx context.Context, endpoint, blobID string, chunkIndex int, data []byte) error {
	req := api.WriteChunkRequest{
		BlobID:     blobID,
		ChunkIndex: chunkIndex,
		Data:       data,
	}
	return c.t.PostJSON(ctx, transport.BaseURL(endpoint)+"/chunk/write", req, nil)
}

// Read fetches a chunk's bytes. A missing chunk yields a NotFound error.
func (c *Client) Read(ctx context.Context, endpoint, blobID string, chunkIndex int) ([]byte, error) {
	var resp api.ReadChunkResponse
	if err := c.t.GetJSON(ctx, chunkURL(endpoint, "read", blobID, chunkIndex), &resp); err != nil {
		return nil, err
	}
	if resp.Size != 0 && resp.Size != len(resp.Data) {
		return nil, apierrors.Internal(nil, "chunk %s/%d size mismatch: declared %d, got %d",
			blobID, chunkIndex, resp.Size, len(resp.Data))
	}
	return resp.Data, nil
}

// Exists reports whether the node holds the chunk.
func (c *Client) Exists(ctx context.Context, endpoint, blobID string, chunkIndex int) (bool, error) {
	var resp api.ExistsResponse
	if err := c.t.GetJSON(ctx, chunkURL(endpoint, "exists", blobID, chunkIndex), &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Delete removes a chunk from the node. Deleting an absent chunk succeeds.
func (c *Client) Delete(ctx context.Context, endpoint, blobID string, chunkIndex int) error {
	err := c.t.Delete(ctx, chunkURL(endpoint, "delete", blobID, chunkIndex), nil)
	if apierrors.Is(err, apierrors.KindNotFound) {
		return nil
	}
	return err
}

// Inventory lists the chunks physically present on the node.
func (c *Client) Inventory(ctx context.Context, endpoint string) (api.Inventory, error) {
	inv := api.Inventory{}
	if err := c.t.GetJSON(ctx, transport.BaseURL(endpoint)+"/chunk/inventory", &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Stats returns the node's chunk statistics.
func (c *Client) Stats(ctx context.Context, endpoint string) (*api.NodeStatsResponse, error) {
	var resp api.NodeStatsResponse
	if err := c.t.GetJSON(ctx, transport.BaseURL(endpoint)+"/chunk/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
