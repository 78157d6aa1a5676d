// Package portainer wraps the Portainer CE API used by the dashboard:
// endpoints, stacks and containers, with start/stop controls. All requests
// authenticate with the X-API-Key header.
package portainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/slimani-dev/muraqib/internal/config"
)

// Client talks to one Portainer instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.PortainerConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint is a Portainer environment (a Docker host or agent).
type Endpoint struct {
	ID     int    `json:"Id"`
	Name   string `json:"Name"`
	URL    string `json:"URL"`
	Status int    `json:"Status"` // 1 up, 2 down
}

// Stack is a compose or swarm stack managed by Portainer.
type Stack struct {
	ID         int    `json:"Id"`
	Name       string `json:"Name"`
	EndpointID int    `json:"EndpointId"`
	Status     int    `json:"Status"` // 1 active, 2 inactive
}

// Container is the subset of the Docker container listing the dashboard
// shows. Portainer proxies the Docker API verbatim, hence the Docker field
// names.
type Container struct {
	ID     string   `json:"Id"`
	Names  []string `json:"Names"`
	Image  string   `json:"Image"`
	State  string   `json:"State"`
	Status string   `json:"Status"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("portainer: encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("portainer: build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("portainer: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("portainer: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("portainer: decode response: %w", err)
		}
	}
	return nil
}

// errorMessage pulls the message out of Portainer's {message, details}
// error body, falling back to the raw body.
func errorMessage(raw []byte) string {
	var e struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		if e.Details != "" && e.Details != e.Message {
			return e.Message + ": " + e.Details
		}
		return e.Message
	}
	return string(raw)
}

// APIError is a non-2xx response from Portainer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portainer: HTTP %d: %s", e.Status, e.Message)
}

// ListEndpoints returns all environments visible to the API key.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.do(ctx, http.MethodGet, "/api/endpoints", nil, nil, &endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

// ListStacks returns the stacks of one environment.
func (c *Client) ListStacks(ctx context.Context, endpointID int) ([]Stack, error) {
	filters, err := json.Marshal(map[string]int{"EndpointID": endpointID})
	if err != nil {
		return nil, fmt.Errorf("portainer: encode filters: %w", err)
	}
	query := url.Values{"filters": {string(filters)}}
	var stacks []Stack
	if err := c.do(ctx, http.MethodGet, "/api/stacks", query, nil, &stacks); err != nil {
		return nil, err
	}
	return stacks, nil
}

// StartStack starts a stopped stack.
func (c *Client) StartStack(ctx context.Context, endpointID, stackID int) error {
	query := url.Values{"endpointId": {strconv.Itoa(endpointID)}}
	return c.do(ctx, http.MethodPost, "/api/stacks/"+strconv.Itoa(stackID)+"/start", query, nil, nil)
}

// StopStack stops a running stack.
func (c *Client) StopStack(ctx context.Context, endpointID, stackID int) error {
	query := url.Values{"endpointId": {strconv.Itoa(endpointID)}}
	return c.do(ctx, http.MethodPost, "/api/stacks/"+strconv.Itoa(stackID)+"/stop", query, nil, nil)
}

// ListContainers lists all containers of an environment through Portainer's
// Docker proxy.
func (c *Client) ListContainers(ctx context.Context, endpointID int) ([]Container, error) {
	query := url.Values{"all": {"true"}}
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/json", endpointID)
	var containers []Container
	if err := c.do(ctx, http.MethodGet, path, query, nil, &containers); err != nil {
		return nil, err
	}
	return containers, nil
}

// StartContainer starts a container by Docker ID.
func (c *Client) StartContainer(ctx context.Context, endpointID int, containerID string) error {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/start", endpointID, containerID)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// StopContainer stops a container by Docker ID.
func (c *Client) StopContainer(ctx context.Context, endpointID int, containerID string) error {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/stop", endpointID, containerID)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}
