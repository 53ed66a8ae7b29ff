package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockpool/cmd/stockpool/cli"
	"github.com/odyssey-erp/stockpool/internal/app"
	"github.com/odyssey-erp/stockpool/internal/integration"
	"github.com/odyssey-erp/stockpool/internal/inventory"
	"github.com/odyssey-erp/stockpool/internal/observability"
	"github.com/odyssey-erp/stockpool/internal/platform/cache"
	"github.com/odyssey-erp/stockpool/internal/platform/db"
	"github.com/odyssey-erp/stockpool/internal/shared"
	"github.com/odyssey-erp/stockpool/jobs"
)

// engine bundles the store handles and the inventory service shared by every
// subcommand.
type engine struct {
	pool    *pgxpool.Pool
	redis   *redis.Client
	repo    *inventory.Repository
	service *inventory.Service
	queue   *jobs.Client
	metrics *observability.Metrics
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	if cmd == "jobs" {
		jobsCLI, err := cli.NewJobsCLI(cfg.AsynqRedis(), cfg.IdempotencyRetention)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		code := cli.RunJobs(ctx, jobsCLI, args, os.Stdout, os.Stderr)
		_ = jobsCLI.Close()
		os.Exit(code)
	}

	eng, err := open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer eng.close(logger)

	switch cmd {
	case "serve":
		if err := serve(ctx, cfg, logger, eng); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "fx":
		fxCLI, err := cli.NewFXOpsCLI(eng.repo, eng.service, eng.queue)
		if err != nil {
			logger.Error("init fx cli", slog.Any("error", err))
			os.Exit(1)
		}
		if code := cli.RunFX(ctx, fxCLI, args, os.Stdout, os.Stderr); code != 0 {
			eng.close(logger)
			os.Exit(code)
		}
	default:
		logger.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}
}

func open(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*engine, error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions("stockpool"))
	if err != nil {
		return nil, err
	}
	eng := &engine{pool: pool, metrics: observability.NewMetrics()}

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, loan cache disabled", slog.Any("error", err))
	} else {
		eng.redis = redisClient
	}

	eng.queue, err = jobs.NewClient(cfg.AsynqRedis())
	if err != nil {
		pool.Close()
		return nil, err
	}

	eng.repo = inventory.NewRepository(pool)
	deps := inventory.ServiceDeps{
		Repo:        eng.repo,
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Integration: integration.NewHooks(eng.queue, eng.metrics, logger),
		Metrics:     eng.metrics,
		Logger:      logger,
	}
	if eng.redis != nil {
		deps.Cache = inventory.NewLoanCache(eng.redis, cfg.InventoryLoansCacheTTL)
	}
	eng.service = inventory.NewService(deps, inventory.ServiceConfig{
		RejectOversell: cfg.InventoryRejectOversell,
		BatchSize:      cfg.InventoryBatchSize,
		BatchPause:     cfg.InventoryBatchPause,
	})
	return eng, nil
}

func (e *engine) close(logger *slog.Logger) {
	if e.queue != nil {
		if err := e.queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
		e.queue = nil
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
		e.redis = nil
	}
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, eng *engine) error {
	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	ready := map[string]app.Pinger{"postgres": eng.pool}
	if eng.redis != nil {
		ready["redis"] = app.PingFunc(func(ctx context.Context) error { return eng.redis.Ping(ctx).Err() })
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, eng.service, eng.queue),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          eng.metrics,
		Ready:            ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
