// Package flowclient talks to the customer-flow data service over HTTP.
package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/model"
)

// Client fetches segment listings and transition graphs from an upstream
// flow service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL. Timeout bounds each
// request; zero means no client-side timeout (callers can still cancel via
// context).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ListSegments returns the segments the upstream can serve.
func (c *Client) ListSegments(ctx context.Context) ([]model.SegmentOption, error) {
	url := c.baseURL + "/network/customer-flow/segments"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build segments request: %w", err)
	}

	var segments []model.SegmentOption
	if err := c.do(req, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// FetchFlow posts the filter set and returns the raw transition graph.
func (c *Client) FetchFlow(ctx context.Context, request model.FlowRequest) (*model.FlowResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow request: %w", err)
	}

	url := c.baseURL + "/network/customer-flow"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build flow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var response model.FlowResponse
	if err := c.do(req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep enough of the body to diagnose, not enough to flood logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned %d for %s: %s",
			resp.StatusCode, req.URL.Path, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}

	logging.Debug("upstream request completed",
		"path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}
