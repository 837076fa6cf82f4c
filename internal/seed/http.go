package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends a request and decodes a JSON response into v when v is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// checkHealth verifies the service is running.
func (c *HTTPClient) checkHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil)
}

// recalculate asks the service for a full recalculation.
func (c *HTTPClient) recalculate(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/recalculate", &out)
	return out, err
}

// leaderboard fetches the top n entries of a bracket.
func (c *HTTPClient) leaderboard(ctx context.Context, bracket string, n int) ([]Entry, error) {
	q := url.Values{"bracket": {bracket}, "limit": {strconv.Itoa(n)}}
	var out []Entry
	err := c.do(ctx, http.MethodGet, "/leaderboard?"+q.Encode(), &out)
	return out, err
}
