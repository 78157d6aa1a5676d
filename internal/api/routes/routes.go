package routes

import (
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/api/handlers"
	"github.com/slimani-dev/muraqib/internal/api/ws"
	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/db"
	"github.com/slimani-dev/muraqib/internal/kms"
	"github.com/slimani-dev/muraqib/internal/netdata"
	"github.com/slimani-dev/muraqib/internal/portainer"
	"github.com/slimani-dev/muraqib/internal/storage"
)

func Register(e *echo.Echo, database *db.DB, kmsService *kms.Encryptor, queueClient *asynq.Client, store storage.Backend, ptr *portainer.Client, nd *netdata.Client, hub *ws.Hub, cfCfg config.CloudflareConfig, log *zap.Logger) {
	h := handlers.NewHandlers(database, kmsService, queueClient, store, ptr, nd, hub, cfCfg, log)

	e.GET("/health", h.Health)

	api := e.Group("/api/v1")

	api.POST("/accounts", h.CreateAccount)
	api.GET("/accounts", h.ListAccounts)
	api.GET("/accounts/:id", h.GetAccount)
	api.POST("/accounts/:id/verify", h.VerifyAccountToken)
	api.DELETE("/accounts/:id", h.DeleteAccount)
	api.GET("/accounts/:id/domains", h.ListDomains)

	api.POST("/tunnels", h.CreateTunnel)
	api.GET("/tunnels", h.ListTunnels)
	api.GET("/tunnels/:id", h.GetTunnel)
	api.GET("/tunnels/:id/token", h.TunnelToken)
	api.DELETE("/tunnels/:id", h.DeleteTunnel)
	api.POST("/tunnels/:id/status", h.RefreshTunnelStatus)
	api.POST("/tunnels/:id/rules", h.CreateIngressRule)
	api.GET("/tunnels/:id/rules", h.ListIngressRules)
	api.DELETE("/tunnels/:id/rules/:rule_id", h.DeleteIngressRule)
	api.POST("/tunnels/:id/publish", h.PublishIngress)

	api.POST("/domains", h.CreateDomain)
	api.DELETE("/domains/:id", h.DeleteDomain)
	api.GET("/domains/:id/records", h.ListZoneRecords)
	api.POST("/domains/:id/ensure-cname", h.EnsureCNAME)
	api.POST("/domains/:id/sync", h.SyncDomain)
	api.GET("/domains/:id/sync-runs", h.ListSyncRuns)
	api.GET("/sync-runs/:run_id", h.GetSyncRun)

	api.POST("/protections", h.ProtectHostname)
	api.GET("/domains/:id/protections", h.ListProtections)
	api.GET("/protections/:id/usage", h.ProtectionUsage)
	api.POST("/protections/:id/rotate", h.RotateProtection)
	api.DELETE("/protections/:id", h.DeleteProtection)

	api.GET("/portainer/endpoints", h.ListEndpoints)
	api.GET("/portainer/stacks", h.ListStacks)
	api.POST("/portainer/endpoints/:endpoint_id/sync", h.SyncStacks)
	api.POST("/portainer/endpoints/:endpoint_id/stacks/:stack_id/start", h.StartStack)
	api.POST("/portainer/endpoints/:endpoint_id/stacks/:stack_id/stop", h.StopStack)
	api.GET("/portainer/endpoints/:endpoint_id/containers", h.ListContainers)
	api.POST("/portainer/endpoints/:endpoint_id/containers/:container_id/start", h.StartContainer)
	api.POST("/portainer/endpoints/:endpoint_id/containers/:container_id/stop", h.StopContainer)

	api.GET("/metrics/data", h.ChartData)
	api.GET("/metrics/info", h.HostInfo)

	e.GET("/ws/status", h.StreamStatus)
}
