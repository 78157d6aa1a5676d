package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/queue"
)

// ── Tunnel Handlers ───────────────────────────────────────────────────────────

type CreateTunnelRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
}

// CreateTunnel finds or creates the remote tunnel by name and mirrors it
// locally. Re-posting the same name converges on the same remote tunnel.
func (h *Handlers) CreateTunnel(c echo.Context) error {
	var req CreateTunnelRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.AccountID == uuid.Nil || req.Name == "" {
		return apiErr(c, http.StatusBadRequest, "missing required fields")
	}

	ctx := c.Request().Context()
	client, account, err := h.cfClientFor(ctx, req.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	remote, err := client.FindOrCreateTunnel(ctx, req.Name)
	if err != nil {
		return vendorErr(c, err)
	}

	tunnel := &models.Tunnel{
		ID:        uuid.New(),
		AccountID: account.ID,
		TunnelID:  remote.ID,
		Name:      remote.Name,
		Status:    remote.Status,
	}
	if err := h.db.Tunnels.Create(ctx, tunnel); err != nil {
		h.log.Error("create tunnel", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to persist tunnel")
	}
	return c.JSON(http.StatusCreated, tunnel)
}

func (h *Handlers) ListTunnels(c echo.Context) error {
	tunnels, err := h.db.Tunnels.List(c.Request().Context())
	if err != nil {
		h.log.Error("list tunnels", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list tunnels")
	}
	return c.JSON(http.StatusOK, tunnels)
}

// GetTunnel returns the mirrored row plus, when reachable, live remote
// details. Remote trouble degrades to the mirror instead of failing the
// read.
func (h *Handlers) GetTunnel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	tunnel, err := h.db.Tunnels.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "tunnel not found")
	}

	resp := map[string]interface{}{"tunnel": tunnel}
	if client, _, err := h.cfClientFor(ctx, tunnel.AccountID); err == nil {
		if details, err := client.TunnelDetails(ctx, tunnel.TunnelID); err == nil && details != nil {
			resp["remote"] = details
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// TunnelToken returns the connector token for running cloudflared.
func (h *Handlers) TunnelToken(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	tunnel, err := h.db.Tunnels.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "tunnel not found")
	}
	client, _, err := h.cfClientFor(ctx, tunnel.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	token, err := client.TunnelToken(ctx, tunnel.TunnelID)
	if err != nil {
		return vendorErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// DeleteTunnel cascades the remote deletion, then drops the mirror.
func (h *Handlers) DeleteTunnel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	tunnel, err := h.db.Tunnels.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "tunnel not found")
	}
	client, _, err := h.cfClientFor(ctx, tunnel.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	if err := client.DeleteTunnel(ctx, tunnel.TunnelID); err != nil {
		return vendorErr(c, err)
	}
	if err := h.db.Tunnels.Delete(ctx, id); err != nil {
		h.log.Error("delete tunnel mirror", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "remote deleted but failed to drop mirror")
	}
	return c.NoContent(http.StatusNoContent)
}

// RefreshTunnelStatus reads live status for one tunnel, persists any change,
// pushes it to connected dashboards, and enqueues a background sweep for the
// account's remaining tunnels.
func (h *Handlers) RefreshTunnelStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	tunnel, err := h.db.Tunnels.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "tunnel not found")
	}
	client, _, err := h.cfClientFor(ctx, tunnel.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	details, err := client.TunnelDetails(ctx, tunnel.TunnelID)
	if err != nil {
		return vendorErr(c, err)
	}
	status := "unknown"
	if details != nil {
		status = details.Status
		tunnel.ConnsActiveAt = details.ConnsActiveAt
	}
	if status != tunnel.Status {
		tunnel.Status = status
		if err := h.db.Tunnels.UpdateStatus(ctx, tunnel.ID, tunnel.Status, tunnel.ConnsActiveAt); err != nil {
			h.log.Error("persist tunnel status", zap.Error(err))
			return apiErr(c, http.StatusInternalServerError, "failed to persist status")
		}
		h.hub.PublishTunnelStatus(tunnel)
	}

	// Sibling tunnels refresh in the background; a full queue does not
	// invalidate the refresh that already happened.
	task, err := queue.NewTunnelStatusTask(queue.TunnelStatusPayload{AccountID: tunnel.AccountID})
	if err == nil {
		if _, err := h.queue.EnqueueContext(ctx, task); err != nil {
			h.log.Warn("enqueue status sweep", zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, tunnel)
}

// StreamStatus upgrades to a websocket subscribed to live status events.
func (h *Handlers) StreamStatus(c echo.Context) error {
	return h.hub.Serve(c.Response(), c.Request())
}

// ── Ingress Rule Handlers ─────────────────────────────────────────────────────

type CreateIngressRuleRequest struct {
	Hostname      string          `json:"hostname"`
	Path          string          `json:"path"`
	Service       string          `json:"service"`
	IsCatchAll    bool            `json:"is_catch_all"`
	OriginRequest json.RawMessage `json:"origin_request"`
	Position      int             `json:"position"`
}

func (h *Handlers) CreateIngressRule(c echo.Context) error {
	tunnelID, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	var req CreateIngressRuleRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Service == "" {
		return apiErr(c, http.StatusBadRequest, "service is required")
	}
	if req.Hostname == "" && !req.IsCatchAll {
		return apiErr(c, http.StatusBadRequest, "hostname is required for non catch-all rules")
	}

	rule := &models.IngressRule{
		ID:            uuid.New(),
		TunnelID:      tunnelID,
		Hostname:      req.Hostname,
		Path:          req.Path,
		Service:       req.Service,
		IsCatchAll:    req.IsCatchAll,
		OriginRequest: req.OriginRequest,
		Position:      req.Position,
	}
	if err := h.db.Rules.Create(c.Request().Context(), rule); err != nil {
		h.log.Error("create ingress rule", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to create rule")
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handlers) ListIngressRules(c echo.Context) error {
	tunnelID, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	rules, err := h.db.Rules.ListByTunnel(c.Request().Context(), tunnelID)
	if err != nil {
		h.log.Error("list ingress rules", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list rules")
	}
	return c.JSON(http.StatusOK, rules)
}

func (h *Handlers) DeleteIngressRule(c echo.Context) error {
	ruleID, err := pathID(c, "rule_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid rule id")
	}
	if err := h.db.Rules.Delete(c.Request().Context(), ruleID); err != nil {
		h.log.Error("delete ingress rule", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to delete rule")
	}
	return c.NoContent(http.StatusNoContent)
}

// PublishIngress pushes the tunnel's stored rules as its complete remote
// configuration. The push replaces whatever is remote, so the current remote
// document is snapshotted first when it can be read.
func (h *Handlers) PublishIngress(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	tunnel, err := h.db.Tunnels.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "tunnel not found")
	}
	client, account, err := h.cfClientFor(ctx, tunnel.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	rules, err := h.db.Rules.ListByTunnel(ctx, id)
	if err != nil {
		h.log.Error("list ingress rules", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list rules")
	}

	var snapshotKey string
	if current, err := client.TunnelConfiguration(ctx, tunnel.TunnelID); err == nil && current != nil {
		raw, err := json.Marshal(current)
		if err == nil {
			key, _, _, err := h.store.PutSnapshot(ctx, account.ID, tunnel.ID, raw)
			if err != nil {
				// The publish is what the user asked for; a failed backup is
				// reported, not fatal.
				h.log.Warn("snapshot before publish failed",
					zap.String("tunnel", tunnel.Name), zap.Error(err))
			} else {
				snapshotKey = key
			}
		}
	}

	if err := client.UpdateIngress(ctx, tunnel.TunnelID, rules); err != nil {
		return vendorErr(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"published": len(rules),
		"snapshot":  snapshotKey,
	})
}
