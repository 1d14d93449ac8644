// Package transport provides the JSON-over-HTTP calls used between pairfs
// services. Every call carries its own timeout and honours context cancellation.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devrev/pairfs/pkg/apierrors"
)

// DefaultTimeout applies when a Client is built with a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// Client issues JSON requests with a per-call timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a Client. A nil httpClient uses a fresh http.Client.
func NewClient(httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: httpClient, timeout: timeout}
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// BaseURL normalizes a node endpoint into an absolute base URL without trailing slash.
func BaseURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return endpoint
}

// GetJSON performs a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}

// PostJSON performs a POST with a JSON body and decodes the response into out when non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, body any, out any) error {
	return c.Do(ctx, http.MethodPost, url, body, out)
}

// Delete performs a DELETE and decodes the response into out when non-nil.
func (c *Client) Delete(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodDelete, url, nil, out)
}

// Do performs a JSON request. Transport failures are TransientNetwork errors,
// non-2xx responses are decoded into classified errors.
func (c *Client) Do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return apierrors.Internal(err, "failed to encode request")
		}
		reader = bytes.NewReader(reqBody)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return apierrors.Internal(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apierrors.TransientNetwork(err, "%s %s failed", method, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apierrors.Decode(resp.StatusCode, respBody)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierrors.Internal(err, "failed to decode response from %s", url)
	}
	return nil
}
