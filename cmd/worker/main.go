package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/bulog/serapan/internal/analytics"
	"github.com/bulog/serapan/internal/app"
	jobmetrics "github.com/bulog/serapan/internal/jobs"
	"github.com/bulog/serapan/internal/platform/cache"
	"github.com/bulog/serapan/internal/platform/db"
	"github.com/bulog/serapan/internal/reconcile"
	"github.com/bulog/serapan/internal/reconcile/pgstore"
	"github.com/bulog/serapan/jobs"
)

func main() {
	if app.SkipStartup("worker") {
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "serapan-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	store := pgstore.New(pool)
	engine := reconcile.NewEngine(store, logger, cfg.Reconcile(),
		reconcile.WithRecorder(metrics),
		reconcile.WithLock(reconcile.NewLock()),
	)
	dashboard := analytics.NewService(store, analytics.NewCache(redisClient, cfg.CacheTTL), logger)

	importJob := jobs.NewReconcileImportJob(engine, dashboard, cfg.ImportDir, logger, metrics)
	warmupJob := jobs.NewDashboardWarmupJob(dashboard, logger, metrics)

	warmupTask, err := jobs.NewDashboardWarmupTask("")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileImport, Handler: importJob.Handle},
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.WarmupSchedule, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1), asynq.Unique(jobs.WarmupUniqueTTL)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("import_dir", cfg.ImportDir), slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
