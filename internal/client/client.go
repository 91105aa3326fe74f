// Package client provides typed access to a running dashboard's JSON API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/arturn1/log-dashboard/internal/domain"
	"github.com/arturn1/log-dashboard/internal/stream"
)

// Client queries the dashboard HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided dashboard base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:7080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid dashboard url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the dashboard.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dashboard request failed with status %d", e.Status)
	}
	return fmt.Sprintf("dashboard request failed (%d): %s", e.Status, e.Message)
}

// get decodes the JSON body of path into v. Statuses listed in accept are
// decoded like successes.
func (c *Client) get(ctx context.Context, path string, v any, accept ...int) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest && !slices.Contains(accept, resp.StatusCode) {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// State fetches the full dashboard view.
func (c *Client) State(ctx context.Context) (stream.View, error) {
	var view stream.View
	if err := c.get(ctx, "/api/state", &view); err != nil {
		return stream.View{}, err
	}
	return view, nil
}

// Logs fetches the most recent limit events; limit <= 0 uses the server default.
func (c *Client) Logs(ctx context.Context, limit int) ([]domain.LifecycleEvent, error) {
	path := "/api/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Logs []domain.LifecycleEvent `json:"logs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// OpenActions fetches the actions still in flight.
func (c *Client) OpenActions(ctx context.Context) ([]domain.LifecycleEvent, error) {
	var resp struct {
		OpenActions []domain.LifecycleEvent `json:"open_actions"`
	}
	if err := c.get(ctx, "/api/open", &resp); err != nil {
		return nil, err
	}
	return resp.OpenActions, nil
}

// MetricsResponse is the payload of /api/metrics.
type MetricsResponse struct {
	Metrics        domain.Metrics         `json:"metrics"`
	DurationSeries []domain.DurationPoint `json:"duration_series"`
}

// Metrics fetches the aggregated metrics and duration series.
func (c *Client) Metrics(ctx context.Context) (MetricsResponse, error) {
	var resp MetricsResponse
	if err := c.get(ctx, "/api/metrics", &resp); err != nil {
		return MetricsResponse{}, err
	}
	return resp, nil
}

// Health describes the /healthz payload.
type Health struct {
	Status     string                    `json:"status"`
	Components map[string]map[string]any `json:"components"`
	Timestamp  string                    `json:"timestamp"`
}

// Health fetches service health. A degraded service answers 503, which is
// reported through Health.Status rather than as an error.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/healthz", &health, http.StatusServiceUnavailable); err != nil {
		return Health{}, err
	}
	return health, nil
}
