package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/db"
	"github.com/slimani-dev/muraqib/internal/kms"
	"github.com/slimani-dev/muraqib/internal/notifications"
	"github.com/slimani-dev/muraqib/internal/portainer"
	"github.com/slimani-dev/muraqib/internal/queue"
	"github.com/slimani-dev/muraqib/internal/worker"
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

	// 3. Vendor clients
	ptr := portainer.NewClient(cfg.Portainer)

	var notifier notifications.Notifier = &notifications.LogNotifier{Log: zl}
	if cfg.Notify.WebhookURL != "" {
		notifier = notifications.NewWebhookNotifier(cfg.Notify.WebhookURL)
	}

	// 4. Init processors
	dnsSync := worker.NewDNSSyncProcessor(
		database.SyncRuns, database.Domains, database.Accounts, database.Rules,
		kmsService, notifier, cfg.Cloudflare, zl,
	)
	portainerSync := worker.NewPortainerSyncProcessor(ptr, database.Stacks, zl)
	// Status changes are persisted here; the API process streams them to
	// dashboards from its own refresh path.
	tunnelStatus := worker.NewTunnelStatusProcessor(
		database.Tunnels, database.Accounts, kmsService, nil, cfg.Cloudflare, zl,
	)

	// 5. Start worker server
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeDNSSync, dnsSync.ProcessTask)
	mux.HandleFunc(queue.TypePortainerSync, portainerSync.ProcessTask)
	mux.HandleFunc(queue.TypeTunnelStatus, tunnelStatus.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			zl.Fatal("could not run worker server", zap.Error(err))
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down worker")
	srv.Shutdown()
}
