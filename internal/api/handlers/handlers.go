package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/api/middleware"
	"github.com/slimani-dev/muraqib/internal/api/ws"
	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/db"
	"github.com/slimani-dev/muraqib/internal/kms"
	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/netdata"
	"github.com/slimani-dev/muraqib/internal/portainer"
	"github.com/slimani-dev/muraqib/internal/storage"
)

type Handlers struct {
	db        *db.DB
	kms       *kms.Encryptor
	queue     *asynq.Client
	store     storage.Backend
	portainer *portainer.Client
	netdata   *netdata.Client
	hub       *ws.Hub
	cfCfg     config.CloudflareConfig
	log       *zap.Logger
}

func NewHandlers(db *db.DB, kms *kms.Encryptor, queue *asynq.Client, store storage.Backend, ptr *portainer.Client, nd *netdata.Client, hub *ws.Hub, cfCfg config.CloudflareConfig, log *zap.Logger) *Handlers {
	return &Handlers{
		db:        db,
		kms:       kms,
		queue:     queue,
		store:     store,
		portainer: ptr,
		netdata:   nd,
		hub:       hub,
		cfCfg:     cfCfg,
		log:       log,
	}
}

// ── Error helpers ─────────────────────────────────────────────────────────────

type errResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ReqID   string `json:"request_id,omitempty"`
}

func apiErr(c echo.Context, code int, msg string) error {
	reqID, _ := c.Get(middleware.ContextKeyRequestID).(string)
	return c.JSON(code, errResponse{Code: code, Message: msg, ReqID: reqID})
}

// vendorErr maps a Cloudflare call failure to a response that carries the
// vendor's message verbatim, so the dashboard shows the real reason.
func vendorErr(c echo.Context, err error) error {
	return apiErr(c, http.StatusBadGateway, err.Error())
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}

// cfClientFor loads the account, decrypts its API token and builds a
// per-account Cloudflare client.
func (h *Handlers) cfClientFor(ctx context.Context, accountID uuid.UUID) (*cloudflare.Client, *models.Account, error) {
	account, err := h.db.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("get account: %w", err)
	}
	apiToken, err := h.kms.Decrypt(account.APITokenEnc)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt api token: %w", err)
	}
	return cloudflare.NewClient(h.cfCfg, account.CFAccountID, apiToken), account, nil
}

// Health reports service liveness plus connected dashboard count.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": h.hub.Count(),
	})
}

// ── Account Handlers ──────────────────────────────────────────────────────────

type CreateAccountRequest struct {
	Name        string `json:"name"`
	CFAccountID string `json:"cf_account_id"`
	APIToken    string `json:"api_token"`
}

func (h *Handlers) CreateAccount(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.CFAccountID == "" || req.APIToken == "" {
		return apiErr(c, http.StatusBadRequest, "missing required fields")
	}

	// Reject tokens that Cloudflare itself reports as unusable.
	probe := cloudflare.NewClient(h.cfCfg, req.CFAccountID, req.APIToken)
	if !probe.VerifyToken(c.Request().Context()) {
		return apiErr(c, http.StatusUnprocessableEntity, "api token is not active for this account")
	}

	tokenEnc, err := h.kms.Encrypt(req.APIToken)
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to encrypt api token")
	}

	account := &models.Account{
		ID:          uuid.New(),
		Name:        req.Name,
		CFAccountID: req.CFAccountID,
		APITokenEnc: tokenEnc,
	}
	if err := h.db.Accounts.Create(c.Request().Context(), account); err != nil {
		h.log.Error("create account", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to create account")
	}
	return c.JSON(http.StatusCreated, account)
}

func (h *Handlers) ListAccounts(c echo.Context) error {
	accounts, err := h.db.Accounts.List(c.Request().Context())
	if err != nil {
		h.log.Error("list accounts", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list accounts")
	}
	return c.JSON(http.StatusOK, accounts)
}

func (h *Handlers) GetAccount(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	account, err := h.db.Accounts.GetByID(c.Request().Context(), id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}
	return c.JSON(http.StatusOK, account)
}

// VerifyAccountToken re-checks the stored token against Cloudflare.
func (h *Handlers) VerifyAccountToken(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	client, _, err := h.cfClientFor(c.Request().Context(), id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}
	return c.JSON(http.StatusOK, map[string]bool{
		"active": client.VerifyToken(c.Request().Context()),
	})
}

func (h *Handlers) DeleteAccount(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	if err := h.db.Accounts.Delete(c.Request().Context(), id); err != nil {
		h.log.Error("delete account", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to delete account")
	}
	return c.NoContent(http.StatusNoContent)
}
