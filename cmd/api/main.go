package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	apimw "github.com/slimani-dev/muraqib/internal/api/middleware"
	"github.com/slimani-dev/muraqib/internal/api/routes"
	"github.com/slimani-dev/muraqib/internal/api/ws"
	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/db"
	"github.com/slimani-dev/muraqib/internal/kms"
	"github.com/slimani-dev/muraqib/internal/netdata"
	"github.com/slimani-dev/muraqib/internal/portainer"
	"github.com/slimani-dev/muraqib/internal/storage"
	"github.com/slimani-dev/muraqib/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl := logger.Must(cfg.App.Env)
	defer zl.Sync()

	// 1. Init DB
	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	// 2. Init KMS
	if cfg.KMS.Key == "" {
		zl.Fatal("KMS key is required (MURAQIB_KMS_KEY)")
	}
	kmsService, err := kms.New(cfg.KMS.Key)
	if err != nil {
		zl.Fatal("failed to init kms", zap.Error(err))
	}

	// 3. Init snapshot store
	var store storage.Backend
	switch cfg.Storage.Backend {
	case "s3":
		store, err = storage.NewS3Store(ctx, cfg.S3)
	case "fs":
		store, err = storage.NewFSStore(cfg.Storage.FSRoot)
	default:
		zl.Fatal("unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}
	if err != nil {
		zl.Fatal("failed to init storage", zap.Error(err))
	}

	// 4. Init queue client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// 5. Vendor clients and websocket hub
	ptr := portainer.NewClient(cfg.Portainer)
	nd := netdata.NewClient(cfg.Netdata)
	hub := ws.NewHub(zl)

	// 6. Init Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(apimw.RequestID())
	e.Use(apimw.SecurityHeaders())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       3600,
	}))
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{Level: 5}))
	// 60 req/s per IP, burst of 120
	e.Use(apimw.RateLimit(60, 120))

	// 7. Register routes
	routes.Register(e, database, kmsService, queueClient, store, ptr, nd, hub, cfg.Cloudflare, zl)

	// 8. Dependency-aware readiness check
	e.GET("/ready", func(c echo.Context) error {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}
		deps := make(map[string]depStatus)
		overall := "ok"

		pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := database.Pool.Ping(pingCtx); err != nil {
			deps["postgres"] = depStatus{Status: "error", Error: err.Error()}
			overall = "degraded"
		} else {
			deps["postgres"] = depStatus{Status: "ok"}
		}

		conn, dialErr := (&net.Dialer{}).DialContext(pingCtx, "tcp", cfg.Redis.Addr)
		if dialErr != nil {
			deps["redis"] = depStatus{Status: "error", Error: dialErr.Error()}
			overall = "degraded"
		} else {
			conn.Close()
			deps["redis"] = depStatus{Status: "ok"}
		}

		status := http.StatusOK
		if overall != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]interface{}{
			"status":  overall,
			"version": cfg.App.Version,
			"deps":    deps,
		})
	})

	// 9. Start server
	go func() {
		port := strconv.Itoa(cfg.App.Port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			zl.Warn("server stopped", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(ctxShutdown); err != nil {
		zl.Fatal("server forced to shutdown", zap.Error(err))
	}
}
