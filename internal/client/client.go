// Package client provides an HTTP client for the listsync server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/service"
)

// Client talks to a running listsync server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses LISTSYNC_SERVER_URL env var or defaults to localhost:8486.
// Timeout can be configured via LISTSYNC_CLIENT_TIMEOUT env var (default 5m, scans over a large store take a while).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("LISTSYNC_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8486"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("LISTSYNC_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError is the error envelope the server returns for non-2xx responses.
type apiError struct {
	Error string `json:"error"`
}

// do sends one request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, ae.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// FetchGaps runs a completeness scan on the server. limit of 0 uses the
// server's configured default.
func (c *Client) FetchGaps(ctx context.Context, limit int) (*service.GapReport, error) {
	path := "/api/gaps"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var report service.GapReport
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RepairResult is the server's answer to a repair request. JobID is empty
// when no repair was needed.
type RepairResult struct {
	JobID       string `json:"jobId"`
	ItemsToSync int    `json:"itemsToSync"`
	Message     string `json:"message"`
}

// StartRepair asks the server to start a repair job over its incomplete
// listings.
func (c *Client) StartRepair(ctx context.Context) (*RepairResult, error) {
	var result RepairResult
	if err := c.do(ctx, http.MethodPost, "/api/repair", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs returns recent repair jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]service.JobSnapshot, error) {
	var result struct {
		Jobs []service.JobSnapshot `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// GetJob returns the current snapshot for one repair job.
func (c *Client) GetJob(ctx context.Context, id string) (*service.JobSnapshot, error) {
	var snap service.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetStats returns the server's operation timing metrics.
func (c *Client) GetStats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WatchJob subscribes to a job's progress stream over websocket. The
// onSnapshot callback is invoked for each pushed snapshot; return an error
// from onSnapshot to abort. Returns after the terminal snapshot has been
// delivered.
func (c *Client) WatchJob(ctx context.Context, id string, onSnapshot func(service.JobSnapshot) error) error {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/api/jobs/" + id + "/watch"

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return fmt.Errorf("job %s not found", id)
		}
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller gives up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var snap service.JobSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read snapshot: %w", err)
		}

		if err := onSnapshot(snap); err != nil {
			return err
		}
		if snap.Status == service.JobStatusCompleted || snap.Status == service.JobStatusFailed {
			return nil
		}
	}
}
