// Package randomorg draws unbiased random integers from the random.org
// HTTP API. The ledger engine consumes it as its RandomSource for raffle
// winner draws.
package randomorg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production random.org endpoint.
const DefaultBaseURL = "https://www.random.org"

// Client fetches random integers over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DrawIndex returns a uniform integer in [0, max). A single-element range
// needs no randomness and is answered locally.
func (c *Client) DrawIndex(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("draw index: max must be positive, got %d", max)
	}
	if max == 1 {
		return 0, nil
	}

	q := url.Values{}
	q.Set("num", "1")
	q.Set("min", "0")
	q.Set("max", strconv.Itoa(max-1))
	q.Set("col", "1")
	q.Set("base", "10")
	q.Set("format", "plain")
	q.Set("rnd", "new")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/integers/?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("random.org request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("random.org returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("random.org response: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("random.org returned %q: %w", body, err)
	}
	if n < 0 || n >= max {
		return 0, fmt.Errorf("random.org returned %d outside [0, %d)", n, max)
	}
	return n, nil
}
