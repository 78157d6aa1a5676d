package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// minTunnelTokenLen guards against silently accepting a malformed or empty
// connector token that would make a deployed connector fail opaquely.
const minTunnelTokenLen = 50

// Tunnel is a remote Cloudflare Tunnel as returned by the cfd_tunnel
// endpoints.
type Tunnel struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	ConnsActiveAt *time.Time         `json:"conns_active_at"`
	Connections   []TunnelConnection `json:"connections"`
}

// TunnelConnection is one live connector connection.
type TunnelConnection struct {
	ID                 string    `json:"id"`
	ColoName           string    `json:"colo_name"`
	IsPendingReconnect bool      `json:"is_pending_reconnect"`
	OpenedAt           time.Time `json:"opened_at"`
	OriginIP           string    `json:"origin_ip"`
}

// FindOrCreateTunnel returns the account's tunnel with the given name,
// creating it when none exists. A found tunnel is returned as-is: there is
// no update-in-place even if remote attributes differ. The match is by name
// because the remote UUID does not exist until creation.
func (c *Client) FindOrCreateTunnel(ctx context.Context, name string) (*Tunnel, error) {
	var existing *Tunnel
	query := url.Values{"is_deleted": {"false"}}
	err := c.listAll(ctx, c.accountPath("/cfd_tunnel"), query, func(result json.RawMessage) error {
		var page []Tunnel
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("cloudflare: decode tunnel list: %w", err)
		}
		for i := range page {
			if page[i].Name == name {
				existing = &page[i]
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// config_src must be "cloudflare": without it the vendor creates a
	// locally-managed tunnel that rejects later ingress pushes.
	body := map[string]string{
		"name":       name,
		"config_src": "cloudflare",
	}
	var created Tunnel
	if err := c.do(ctx, http.MethodPost, c.accountPath("/cfd_tunnel"), nil, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// TunnelDetails fetches live status and connections for a tunnel. Vendor
// rejections read as nil rather than an error: callers treat an unknown
// status as a normal, displayable state. Callers must nil-check.
func (c *Client) TunnelDetails(ctx context.Context, tunnelID string) (*Tunnel, error) {
	var out Tunnel
	err := c.do(ctx, http.MethodGet, c.accountPath("/cfd_tunnel/"+tunnelID), nil, nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// TunnelToken fetches the connector token used to run cloudflared for this
// tunnel.
func (c *Client) TunnelToken(ctx context.Context, tunnelID string) (string, error) {
	var token string
	if err := c.do(ctx, http.MethodGet, c.accountPath("/cfd_tunnel/"+tunnelID+"/token"), nil, nil, &token); err != nil {
		return "", err
	}
	if len(token) < minTunnelTokenLen {
		return "", fmt.Errorf("cloudflare: connector token too short (%d chars), refusing to use it", len(token))
	}
	return token, nil
}

// DeleteTunnel removes a tunnel, cascading the deletion of its connections.
func (c *Client) DeleteTunnel(ctx context.Context, tunnelID string) error {
	query := url.Values{"cascade": {"true"}}
	return c.do(ctx, http.MethodDelete, c.accountPath("/cfd_tunnel/"+tunnelID), query, nil, nil)
}
