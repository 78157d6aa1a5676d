package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/models"
)

// ── Access Protection Handlers ────────────────────────────────────────────────

type ProtectHostnameRequest struct {
	DomainID uuid.UUID `json:"domain_id"`
	Hostname string    `json:"hostname"`
}

// protectionResponse exposes the one-time client secret exactly once, on the
// call that provisioned or rotated it.
type protectionResponse struct {
	*models.AccessProtection
	ClientSecret string `json:"client_secret,omitempty"`
}

// ProtectHostname provisions the Zero Trust triple for a hostname and stores
// the resulting credentials, client secret encrypted.
func (h *Handlers) ProtectHostname(c echo.Context) error {
	var req ProtectHostnameRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.DomainID == uuid.Nil || req.Hostname == "" {
		return apiErr(c, http.StatusBadRequest, "missing required fields")
	}
	ctx := c.Request().Context()

	domain, err := h.db.Domains.GetByID(ctx, req.DomainID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "domain not found")
	}
	client, _, err := h.cfClientFor(ctx, domain.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	creds, err := client.ProtectHostname(ctx, req.Hostname)
	if err != nil {
		return vendorErr(c, err)
	}

	secretEnc, err := h.kms.Encrypt(creds.ClientSecret)
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to encrypt client secret")
	}

	protection := &models.AccessProtection{
		ID:              uuid.New(),
		DomainID:        domain.ID,
		Hostname:        req.Hostname,
		AppID:           creds.AppID,
		TokenID:         creds.TokenID,
		ClientID:        creds.ClientID,
		ClientSecretEnc: secretEnc,
		PolicyID:        creds.PolicyID,
	}
	if err := h.db.Protections.Create(ctx, protection); err != nil {
		h.log.Error("persist protection", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "provisioned remotely but failed to persist")
	}

	return c.JSON(http.StatusCreated, protectionResponse{
		AccessProtection: protection,
		ClientSecret:     creds.ClientSecret,
	})
}

func (h *Handlers) ListProtections(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	protections, err := h.db.Protections.ListByDomain(c.Request().Context(), id)
	if err != nil {
		h.log.Error("list protections", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list protections")
	}
	return c.JSON(http.StatusOK, protections)
}

// ProtectionUsage reports every Access group and policy referencing the
// protection's service token.
func (h *Handlers) ProtectionUsage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	protection, domain, err := h.loadProtection(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "protection not found")
	}
	client, _, err := h.cfClientFor(ctx, domain.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	tokenID, err := h.resolveTokenID(c, client, protection)
	if err != nil {
		return vendorErr(c, err)
	}
	if tokenID == "" {
		return apiErr(c, http.StatusNotFound, "service token not found remotely")
	}

	usage, err := client.FindTokenUsage(ctx, tokenID)
	if err != nil {
		return vendorErr(c, err)
	}
	return c.JSON(http.StatusOK, usage)
}

// RotateProtection tears the remote triple down best-effort, re-provisions
// it, and overwrites the stored credentials. Teardown errors are ignored:
// a half-dead triple must not block recovering a working one.
func (h *Handlers) RotateProtection(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	protection, domain, err := h.loadProtection(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "protection not found")
	}
	client, _, err := h.cfClientFor(ctx, domain.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	_ = client.DeleteProtection(ctx, protection.TokenID, protection.ClientID, protection.AppID)

	creds, err := client.ProtectHostname(ctx, protection.Hostname)
	if err != nil {
		return vendorErr(c, err)
	}

	secretEnc, err := h.kms.Encrypt(creds.ClientSecret)
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to encrypt client secret")
	}

	protection.AppID = creds.AppID
	protection.TokenID = creds.TokenID
	protection.ClientID = creds.ClientID
	protection.ClientSecretEnc = secretEnc
	protection.PolicyID = creds.PolicyID
	if err := h.db.Protections.UpdateCredentials(ctx, protection); err != nil {
		h.log.Error("persist rotated protection", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "rotated remotely but failed to persist")
	}

	return c.JSON(http.StatusOK, protectionResponse{
		AccessProtection: protection,
		ClientSecret:     creds.ClientSecret,
	})
}

// DeleteProtection removes the remote triple and its dependents, then drops
// the local row only when the remote teardown fully succeeded. A partial
// teardown keeps the row so the user can retry.
func (h *Handlers) DeleteProtection(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	protection, domain, err := h.loadProtection(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "protection not found")
	}
	client, _, err := h.cfClientFor(ctx, domain.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	// Groups and policies referencing the token go first, otherwise the
	// token deletion strands dangling references.
	tokenID, err := h.resolveTokenID(c, client, protection)
	if err != nil {
		return vendorErr(c, err)
	}
	if tokenID != "" {
		cleanup, err := client.DeleteTokenDependencies(ctx, tokenID)
		if err != nil {
			return vendorErr(c, err)
		}
		if len(cleanup.Errors) > 0 {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"message": "some dependent objects could not be deleted; protection kept for retry",
				"cleanup": cleanup,
			})
		}
	}

	// tokenID already carries the resolved outcome; an empty value means the
	// token is gone remotely and only the application remains.
	result := client.DeleteProtection(ctx, tokenID, "", protection.AppID)
	if len(result.Errors) > 0 {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"message": "remote teardown incomplete; protection kept for retry",
			"result":  result,
		})
	}

	if err := h.db.Protections.Delete(ctx, protection.ID); err != nil {
		h.log.Error("delete protection row", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "remote deleted but failed to drop row")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) loadProtection(ctx context.Context, id uuid.UUID) (*models.AccessProtection, *models.Domain, error) {
	protection, err := h.db.Protections.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	domain, err := h.db.Domains.GetByID(ctx, protection.DomainID)
	if err != nil {
		return nil, nil, err
	}
	return protection, domain, nil
}

// resolveTokenID returns the stored service token UUID, falling back to a
// remote lookup by client ID for rows created before the UUID was recorded.
func (h *Handlers) resolveTokenID(c echo.Context, client *cloudflare.Client, p *models.AccessProtection) (string, error) {
	if p.TokenID != "" {
		return p.TokenID, nil
	}
	return client.ResolveServiceTokenID(c.Request().Context(), p.ClientID)
}
