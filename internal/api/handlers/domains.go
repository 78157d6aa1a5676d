package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/queue"
)

// ── Domain Handlers ───────────────────────────────────────────────────────────

type CreateDomainRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	ZoneID    string    `json:"zone_id"`
	Name      string    `json:"name"`
}

func (h *Handlers) CreateDomain(c echo.Context) error {
	var req CreateDomainRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.AccountID == uuid.Nil || req.ZoneID == "" || req.Name == "" {
		return apiErr(c, http.StatusBadRequest, "missing required fields")
	}

	domain := &models.Domain{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		ZoneID:    req.ZoneID,
		Name:      req.Name,
	}
	if err := h.db.Domains.Create(c.Request().Context(), domain); err != nil {
		h.log.Error("create domain", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to create domain")
	}
	return c.JSON(http.StatusCreated, domain)
}

func (h *Handlers) ListDomains(c echo.Context) error {
	accountID, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	domains, err := h.db.Domains.ListByAccount(c.Request().Context(), accountID)
	if err != nil {
		h.log.Error("list domains", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list domains")
	}
	return c.JSON(http.StatusOK, domains)
}

func (h *Handlers) DeleteDomain(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	if err := h.db.Domains.Delete(c.Request().Context(), id); err != nil {
		h.log.Error("delete domain", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to delete domain")
	}
	return c.NoContent(http.StatusNoContent)
}

// ── DNS Handlers ──────────────────────────────────────────────────────────────

// ListZoneRecords reads the zone's records straight from Cloudflare and
// refreshes the local mirror as a side effect.
func (h *Handlers) ListZoneRecords(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	domain, err := h.db.Domains.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "domain not found")
	}
	client, _, err := h.cfClientFor(ctx, domain.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	records, err := client.ListDNSRecords(ctx, domain.ZoneID, "")
	if err != nil {
		return vendorErr(c, err)
	}

	for _, rec := range records {
		mirror := &models.DNSRecord{
			ID:       uuid.New(),
			DomainID: domain.ID,
			RecordID: rec.ID,
			Type:     rec.Type,
			Name:     rec.Name,
			Content:  rec.Content,
			Proxied:  rec.Proxied,
			TTL:      rec.TTL,
		}
		if err := h.db.Records.Upsert(ctx, mirror); err != nil {
			h.log.Warn("mirror dns record", zap.String("name", rec.Name), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, records)
}

type EnsureCNAMERequest struct {
	Hostname string `json:"hostname"`
	Target   string `json:"target"`
}

// EnsureCNAME reconciles one CNAME immediately, without going through the
// queue. The response carries the three-way outcome.
func (h *Handlers) EnsureCNAME(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	var req EnsureCNAMERequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Hostname == "" || req.Target == "" {
		return apiErr(c, http.StatusBadRequest, "missing required fields")
	}
	ctx := c.Request().Context()

	domain, err := h.db.Domains.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "domain not found")
	}
	client, _, err := h.cfClientFor(ctx, domain.AccountID)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "account not found")
	}

	outcome, err := client.EnsureCNAME(ctx, domain.ZoneID, req.Hostname, req.Target)
	if err != nil {
		var conflict *cloudflare.RecordConflictError
		if errors.As(err, &conflict) {
			return apiErr(c, http.StatusConflict, conflict.Error())
		}
		return vendorErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// SyncDomain creates a sync run row and enqueues the batch CNAME sweep.
func (h *Handlers) SyncDomain(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	domain, err := h.db.Domains.GetByID(ctx, id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "domain not found")
	}

	run := &models.SyncRun{
		ID:       uuid.New(),
		DomainID: domain.ID,
		Status:   models.SyncStatusPending,
	}
	if err := h.db.SyncRuns.Create(ctx, run); err != nil {
		h.log.Error("create sync run", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to create sync run")
	}

	task, err := queue.NewDNSSyncTask(queue.DNSSyncPayload{DomainID: domain.ID, SyncRunID: run.ID})
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to build task")
	}
	if _, err := h.queue.EnqueueContext(ctx, task); err != nil {
		h.log.Error("enqueue dns sync", zap.Error(err))
		return apiErr(c, http.StatusServiceUnavailable, "failed to enqueue sync")
	}
	return c.JSON(http.StatusAccepted, run)
}

func (h *Handlers) ListSyncRuns(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid id")
	}
	runs, err := h.db.SyncRuns.ListByDomain(c.Request().Context(), id, 50)
	if err != nil {
		h.log.Error("list sync runs", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list sync runs")
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *Handlers) GetSyncRun(c echo.Context) error {
	id, err := pathID(c, "run_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid run id")
	}
	run, err := h.db.SyncRuns.GetByID(c.Request().Context(), id)
	if err != nil {
		return apiErr(c, http.StatusNotFound, "sync run not found")
	}
	return c.JSON(http.StatusOK, run)
}
