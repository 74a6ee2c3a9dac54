package simulate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// Client talks to the ranking service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends a request with an optional JSON body and decodes a JSON response
// into out when out is non-nil. It returns the status code.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(data) > 0 && resp.StatusCode < http.StatusBadRequest {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// FeedItem is one row of a ranked list.
type FeedItem struct {
	Rank    int     `json:"rank"`
	MediaID string  `json:"media_id"`
	Score   float64 `json:"score"`
}

type itemsResponse struct {
	Items []FeedItem `json:"items"`
}

// ServiceStats is the subset of /stats the simulator polls.
type ServiceStats struct {
	QueueLength     int   `json:"queueLength"`
	EventsProcessed int64 `json:"eventsProcessed"`
	NeighborRunning bool  `json:"neighborRunning"`
	LastNeighborRun struct {
		UsersScanned int `json:"usersScanned"`
		EdgesWritten int `json:"edgesWritten"`
	} `json:"lastNeighborRun"`
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check returned %d", status)
	}
	return nil
}

// PutMedia registers m in the catalog.
func (c *Client) PutMedia(ctx context.Context, m Media) error {
	status, err := c.do(ctx, http.MethodPut, "/media/"+m.ID, m, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("put media %s returned %d", m.ID, status)
	}
	return nil
}

// PostEvent submits ev and returns the response status.
func (c *Client) PostEvent(ctx context.Context, ev Event) (int, error) {
	return c.do(ctx, http.MethodPost, "/events/"+ev.Kind, ev.Body, nil)
}

// TriggerNeighbors starts the neighbor job. An already running job counts as
// started.
func (c *Client) TriggerNeighbors(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodPost, "/jobs/neighbors", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted && status != http.StatusConflict {
		return fmt.Errorf("trigger neighbors returned %d", status)
	}
	return nil
}

// Stats reads /stats.
func (c *Client) Stats(ctx context.Context) (ServiceStats, error) {
	var s ServiceStats
	status, err := c.do(ctx, http.MethodGet, "/stats", nil, &s)
	if err != nil {
		return s, err
	}
	if status != http.StatusOK {
		return s, fmt.Errorf("stats returned %d", status)
	}
	return s, nil
}

// Feed reads one page of a user's personalized feed.
func (c *Client) Feed(ctx context.Context, userID string, limit int) ([]FeedItem, error) {
	return c.items(ctx, fmt.Sprintf("/users/%s/feed?limit=%d", userID, limit))
}

// TopRated reads the global leaderboard.
func (c *Client) TopRated(ctx context.Context, limit int) ([]FeedItem, error) {
	return c.items(ctx, fmt.Sprintf("/media/top?limit=%d", limit))
}

func (c *Client) items(ctx context.Context, path string) ([]FeedItem, error) {
	var resp itemsResponse
	status, err := c.do(ctx, http.MethodGet, path, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %d", path, status)
	}
	return resp.Items, nil
}
