package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockpool/internal/app"
	"github.com/odyssey-erp/stockpool/internal/inventory"
	"github.com/odyssey-erp/stockpool/internal/observability"
	"github.com/odyssey-erp/stockpool/internal/platform/db"
	"github.com/odyssey-erp/stockpool/internal/shared"
	"github.com/odyssey-erp/stockpool/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions("stockpool-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	idempotencyStore := shared.NewIdempotencyStore(pool)
	inventoryService := inventory.NewService(inventory.ServiceDeps{
		Repo:        inventory.NewRepository(pool),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: idempotencyStore,
		Metrics:     metrics,
		Logger:      logger,
	}, inventory.ServiceConfig{
		RejectOversell: cfg.InventoryRejectOversell,
		BatchSize:      cfg.InventoryBatchSize,
		BatchPause:     cfg.InventoryBatchPause,
	})

	revaluationJob := jobs.NewInventoryRevaluationJob(inventoryService, logger)
	lowStockJob := jobs.NewLowStockJob(logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Metrics:     metrics,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryRevaluation, Handler: revaluationJob.Handle},
			{Type: jobs.TaskInventoryLowStock, Handler: lowStockJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
