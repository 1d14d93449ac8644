package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/transport"
)

// CoordinatorClient handles communication with the coordinator service
type CoordinatorClient struct {
	baseURL string
	t       *transport.Client
	logger  *zap.Logger
}

// NewCoordinatorClient creates a new coordinator client
func NewCoordinatorClient(baseURL string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *CoordinatorClient {
	return &CoordinatorClient{
		baseURL: transport.BaseURL(baseURL),
		t:       transport.NewClient(httpClient, timeout),
		logger:  logger,
	}
}

// URL returns the coordinator base URL
func (c *CoordinatorClient) URL() string {
	return c.baseURL
}

// Register announces the storage node to the coordinator
func (c *CoordinatorClient) Register(ctx context.Context, nodeID, nodeURL string) error {
	req := api.RegisterRequest{URL: nodeURL, ID: nodeID}

	c.logger.Debug("Registering storage node with coordinator",
		zap.String("node_id", nodeID),
		zap.String("url", nodeURL),
		zap.String("coordinator", c.baseURL))

	if err := c.t.PostJSON(ctx, c.baseURL+"/register", req, nil); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}
	return nil
}

// Heartbeat reports liveness and the local inventory
func (c *CoordinatorClient) Heartbeat(ctx context.Context, req *api.HeartbeatRequest) error {
	if err := c.t.PostJSON(ctx, c.baseURL+"/heartbeat", req, nil); err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	return nil
}
