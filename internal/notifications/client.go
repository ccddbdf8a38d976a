package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hirestack/realtime/internal/credentials"
)

// Client talks to the platform's notification REST endpoints using the
// same bearer credential the realtime channel authenticates with.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credentials.Source
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL string, creds credentials.Source, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		creds:      creds,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type listResponse struct {
	Items []Item `json:"items"`
}

type countResponse struct {
	Count int `json:"count"`
}

// List fetches one page of notifications, newest first.
func (c *Client) List(ctx context.Context, page, pageSize int) ([]Item, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var resp listResponse
	if err := c.get(ctx, "/api/notifications?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// UnreadCount fetches the server-side unread counter.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp countResponse
	if err := c.get(ctx, "/api/notifications/unread-count", &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkRead marks the given notifications read on the server.
func (c *Client) MarkRead(ctx context.Context, ids []int64) error {
	body := map[string][]int64{"ids": ids}
	return c.post(ctx, "/api/notifications/mark-read", body)
}

// MarkAllRead marks every notification read on the server.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.post(ctx, "/api/notifications/mark-all-read", nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}
