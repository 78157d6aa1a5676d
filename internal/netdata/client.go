// Package netdata proxies a Netdata instance for dashboard widgets. Chart
// data and host info pass through a read-through cache so widget refreshes
// do not hammer the agent.
package netdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/slimani-dev/muraqib/internal/config"
)

const defaultCacheTTL = 5 * time.Minute

// Client fetches metrics from one Netdata agent.
type Client struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	// now is swapped in tests to control TTL expiry.
	now func() time.Time
}

type cacheEntry struct {
	payload   json.RawMessage
	fetchedAt time.Time
}

func NewClient(cfg config.NetdataConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		ttl:        ttl,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// DataQuery selects a chart slice from /api/v1/data.
type DataQuery struct {
	Chart  string
	After  int // seconds relative to now, negative
	Points int
}

// ChartData fetches one chart's data, served from cache when fresh.
func (c *Client) ChartData(ctx context.Context, q DataQuery) (json.RawMessage, error) {
	query := url.Values{
		"chart":  {q.Chart},
		"format": {"json"},
	}
	if q.After != 0 {
		query.Set("after", fmt.Sprintf("%d", q.After))
	}
	if q.Points > 0 {
		query.Set("points", fmt.Sprintf("%d", q.Points))
	}
	return c.cached(ctx, "/api/v1/data", query)
}

// Info fetches the agent's host info, served from cache when fresh.
func (c *Client) Info(ctx context.Context) (json.RawMessage, error) {
	return c.cached(ctx, "/api/v1/info", nil)
}

func (c *Client) cached(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	key := path
	if len(query) > 0 {
		key += "?" + query.Encode()
	}

	c.mu.Lock()
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.payload, nil
	}

	payload, err := c.fetch(ctx, key)
	if err != nil {
		// A stale entry beats an error while the agent is unreachable.
		if ok {
			return entry.payload, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{payload: payload, fetchedAt: c.now()}
	c.mu.Unlock()
	return payload, nil
}

func (c *Client) fetch(ctx context.Context, pathAndQuery string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("netdata: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netdata: GET %s: %w", pathAndQuery, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("netdata: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("netdata: HTTP %d: %s", resp.StatusCode, string(raw))
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("netdata: invalid JSON from %s", pathAndQuery)
	}
	return raw, nil
}
