package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/slimani-dev/muraqib/internal/models"
)

// CatchAllService is the synthetic terminal rule used when the caller
// supplied no catch-all of their own.
const CatchAllService = "http_status:404"

// IngressEntry is one rule in the remote ingress list. The terminal
// catch-all entry omits hostname and path. Origin-request overrides pass
// through opaquely.
type IngressEntry struct {
	Service       string          `json:"service"`
	Hostname      string          `json:"hostname,omitempty"`
	Path          string          `json:"path,omitempty"`
	OriginRequest json.RawMessage `json:"originRequest,omitempty"`
}

// TunnelConfig is the remote-managed tunnel configuration document.
type TunnelConfig struct {
	Ingress []IngressEntry `json:"ingress"`
}

// BuildIngress converts locally stored rules into the remote ingress list:
// all specific rules in their stored order, then exactly one catch-all.
// When several rules are flagged catch-all, the last one wins; when none
// is, a synthetic http_status:404 entry is substituted. The reduction is
// explicit so the last-wins policy is visible in one place.
func BuildIngress(rules []models.IngressRule) []IngressEntry {
	specific := make([]IngressEntry, 0, len(rules))
	var catchAll *IngressEntry
	for _, r := range rules {
		if r.IsCatchAll || r.Hostname == "" {
			catchAll = &IngressEntry{Service: r.Service, OriginRequest: r.OriginRequest}
			continue
		}
		specific = append(specific, IngressEntry{
			Service:       r.Service,
			Hostname:      r.Hostname,
			Path:          r.Path,
			OriginRequest: r.OriginRequest,
		})
	}
	if catchAll == nil {
		catchAll = &IngressEntry{Service: CatchAllService}
	}
	return append(specific, *catchAll)
}

// UpdateIngress publishes the rules as the tunnel's complete ingress
// configuration. The push is a full replace: the desired-state list is the
// only input, and any rule missing from it is removed remotely.
func (c *Client) UpdateIngress(ctx context.Context, tunnelID string, rules []models.IngressRule) error {
	body := map[string]TunnelConfig{
		"config": {Ingress: BuildIngress(rules)},
	}
	return c.do(ctx, http.MethodPut, c.accountPath("/cfd_tunnel/"+tunnelID+"/configurations"), nil, body, nil)
}

// TunnelConfiguration fetches the current remote ingress configuration.
// Like TunnelDetails it soft-fails to nil on vendor rejection; a tunnel
// that has never been configured has no document to return.
func (c *Client) TunnelConfiguration(ctx context.Context, tunnelID string) (*TunnelConfig, error) {
	var out struct {
		Config TunnelConfig `json:"config"`
	}
	err := c.do(ctx, http.MethodGet, c.accountPath("/cfd_tunnel/"+tunnelID+"/configurations"), nil, nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Config, nil
}
