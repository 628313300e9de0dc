package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/heriberto777/core-app-sub000/internal/api"
	"github.com/heriberto777/core-app-sub000/internal/api/handlers"
	"github.com/heriberto777/core-app-sub000/internal/config"
	"github.com/heriberto777/core-app-sub000/internal/db"
	"github.com/heriberto777/core-app-sub000/internal/job"
	"github.com/heriberto777/core-app-sub000/internal/logger"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
	"github.com/heriberto777/core-app-sub000/internal/progress"
	mongostore "github.com/heriberto777/core-app-sub000/internal/repository/mongo"
	"github.com/heriberto777/core-app-sub000/internal/service"
	"github.com/heriberto777/core-app-sub000/internal/tracker"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Task store
	store, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		zlog.Fatalw("failed to connect to task store", "error", err)
	}

	// Core components
	registry := metrics.NewRegistry()
	manager := db.NewManager(store.DBConfigs(), zlog)
	manager.SetPoolSizeCallback(registry.SetPoolConnections)
	gateway := db.NewGateway(zlog)
	trk := tracker.New()
	prog := progress.NewChannel()

	transfer := service.NewTransfer(store, manager, gateway, trk, prog, registry, zlog)
	transfer.SetBatchConcurrency(cfg.BatchConcurrency)

	monitor := service.NewMonitor(store, manager, zlog)
	monitor.SetInterval(cfg.HealthInterval)
	monitor.SetCooldown(cfg.RecoveryCooldown)
	monitor.SetMaxRecoveryAttempts(cfg.MaxRecoveryAttempts)

	queue := service.NewRetryQueue(transfer, monitor, store, registry, zlog)
	queue.SetInterval(cfg.RetryInterval)
	queue.SetMaxRetries(cfg.RetryMaxRetries)

	transfer.SetRetryQueue(queue)
	transfer.SetHealthChecker(monitor)

	monitor.Start(ctx)
	defer monitor.Stop()
	queue.Start(ctx)
	defer queue.Stop()

	// Background job dispatch
	scheduler, err := job.NewScheduler(cfg.RedisAddr)
	if err != nil {
		zlog.Fatalw("failed to connect job scheduler", "error", err)
	}
	defer scheduler.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker := asynq.NewServer(redisOpt, asynq.Config{Concurrency: cfg.BatchConcurrency})
	mux := asynq.NewServeMux()
	job.NewHandlers(transfer, zlog).RegisterHandlers(mux)

	if err := worker.Start(mux); err != nil {
		zlog.Fatalw("failed to start job worker", "error", err)
	}

	periodic := asynq.NewScheduler(redisOpt, nil)
	sweep := os.Getenv("TRANSFER_SCHEDULE")
	if sweep == "" {
		sweep = "@every 1h"
	}
	if _, err := periodic.Register(sweep, asynq.NewTask(job.TypeTransferScheduled, nil)); err != nil {
		zlog.Fatalw("failed to register scheduled sweep", "error", err)
	}
	if err := periodic.Start(); err != nil {
		zlog.Fatalw("failed to start periodic scheduler", "error", err)
	}

	// HTTP surface
	handler := handlers.NewTaskHandler(store, scheduler, trk, prog, manager, monitor, queue)
	router := api.NewRouter(handler)

	go func() {
		zlog.Infow("starting server", "addr", cfg.ServerAddr)
		if err := router.Echo().Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	zlog.Infow("shutting down")

	// In-flight tasks observe cancellation at their next suspension point.
	for _, id := range trk.Running() {
		trk.Cancel(id)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	periodic.Shutdown()
	worker.Shutdown()
	if err := router.Echo().Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("server shutdown error", "error", err)
	}
	manager.ClosePools()
	if err := store.Close(shutdownCtx); err != nil {
		zlog.Errorw("task store close error", "error", err)
	}
}
