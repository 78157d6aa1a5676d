package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/netdata"
	"github.com/slimani-dev/muraqib/internal/queue"
)

// ── Portainer Handlers ────────────────────────────────────────────────────────

func pathInt(c echo.Context, name string) (int, error) {
	return strconv.Atoi(c.Param(name))
}

func (h *Handlers) ListEndpoints(c echo.Context) error {
	endpoints, err := h.portainer.ListEndpoints(c.Request().Context())
	if err != nil {
		return vendorErr(c, err)
	}
	return c.JSON(http.StatusOK, endpoints)
}

// ListStacks returns the locally mirrored stacks; SyncStacks refreshes them.
func (h *Handlers) ListStacks(c echo.Context) error {
	stacks, err := h.db.Stacks.List(c.Request().Context())
	if err != nil {
		h.log.Error("list stacks", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to list stacks")
	}
	return c.JSON(http.StatusOK, stacks)
}

// SyncStacks enqueues a mirror refresh for one endpoint.
func (h *Handlers) SyncStacks(c echo.Context) error {
	endpointID, err := pathInt(c, "endpoint_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid endpoint id")
	}

	task, err := queue.NewPortainerSyncTask(queue.PortainerSyncPayload{EndpointID: endpointID})
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to build task")
	}
	if _, err := h.queue.EnqueueContext(c.Request().Context(), task); err != nil {
		h.log.Error("enqueue portainer sync", zap.Error(err))
		return apiErr(c, http.StatusServiceUnavailable, "failed to enqueue sync")
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handlers) StartStack(c echo.Context) error {
	return h.stackAction(c, h.portainer.StartStack)
}

func (h *Handlers) StopStack(c echo.Context) error {
	return h.stackAction(c, h.portainer.StopStack)
}

func (h *Handlers) stackAction(c echo.Context, action func(ctx context.Context, endpointID, stackID int) error) error {
	endpointID, err := pathInt(c, "endpoint_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid endpoint id")
	}
	stackID, err := pathInt(c, "stack_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid stack id")
	}
	if err := action(c.Request().Context(), endpointID, stackID); err != nil {
		return vendorErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) ListContainers(c echo.Context) error {
	endpointID, err := pathInt(c, "endpoint_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid endpoint id")
	}
	containers, err := h.portainer.ListContainers(c.Request().Context(), endpointID)
	if err != nil {
		return vendorErr(c, err)
	}
	return c.JSON(http.StatusOK, containers)
}

func (h *Handlers) StartContainer(c echo.Context) error {
	endpointID, err := pathInt(c, "endpoint_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid endpoint id")
	}
	if err := h.portainer.StartContainer(c.Request().Context(), endpointID, c.Param("container_id")); err != nil {
		return vendorErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) StopContainer(c echo.Context) error {
	endpointID, err := pathInt(c, "endpoint_id")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid endpoint id")
	}
	if err := h.portainer.StopContainer(c.Request().Context(), endpointID, c.Param("container_id")); err != nil {
		return vendorErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ── Netdata Handlers ──────────────────────────────────────────────────────────

// ChartData proxies one chart query for a dashboard widget, served through
// the read-through cache.
func (h *Handlers) ChartData(c echo.Context) error {
	chart := c.QueryParam("chart")
	if chart == "" {
		return apiErr(c, http.StatusBadRequest, "chart is required")
	}
	after, _ := strconv.Atoi(c.QueryParam("after"))
	points, _ := strconv.Atoi(c.QueryParam("points"))

	data, err := h.netdata.ChartData(c.Request().Context(), netdata.DataQuery{
		Chart:  chart,
		After:  after,
		Points: points,
	})
	if err != nil {
		return vendorErr(c, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (h *Handlers) HostInfo(c echo.Context) error {
	info, err := h.netdata.Info(c.Request().Context())
	if err != nil {
		return vendorErr(c, err)
	}
	return c.JSONBlob(http.StatusOK, info)
}
