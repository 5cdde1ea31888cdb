package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bulog/serapan/cmd/serapan/cli"
	"github.com/bulog/serapan/internal/analytics"
	analytichttp "github.com/bulog/serapan/internal/analytics/http"
	"github.com/bulog/serapan/internal/app"
	"github.com/bulog/serapan/internal/observability"
	"github.com/bulog/serapan/internal/platform/cache"
	"github.com/bulog/serapan/internal/platform/db"
	"github.com/bulog/serapan/internal/reconcile"
	reconcilehttp "github.com/bulog/serapan/internal/reconcile/http"
	"github.com/bulog/serapan/internal/reconcile/pgstore"
	"github.com/bulog/serapan/jobs"
)

const usage = `usage: serapan <command> [flags]

commands:
  serve                      run the HTTP API (default)
  import <file> --table T    reconcile a spreadsheet into T
  jobs trigger <name>        enqueue reconcile:import or dashboard:warmup
  jobs stats                 print queue statistics
  migrate                    create tables and comparison functions
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return serve(ctx, stop)
	case "import":
		return runImport(ctx, args, stdout, stderr)
	case "jobs":
		return runJobs(ctx, args, stdout, stderr)
	case "migrate":
		return migrate(ctx, stderr)
	case "help":
		_, _ = fmt.Fprint(stdout, usage)
		return cli.ExitOK
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return cli.ExitError
	}
}

func redisOpt(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func connectPostgres(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	return db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "serapan"})
}

func connectRedis(ctx context.Context, cfg *app.Config) (*redis.Client, error) {
	return cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
}

func serve(ctx context.Context, stop context.CancelFunc) int {
	if app.SkipStartup("http server") {
		return cli.ExitOK
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitError
	}
	logger := app.NewLogger(cfg)

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return cli.ExitError
	}
	defer pool.Close()

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		logger.Warn("redis unavailable, serving without dashboard cache", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	store := pgstore.New(pool)
	engine := reconcile.NewEngine(store, logger, cfg.Reconcile(),
		reconcile.WithRecorder(metrics.Jobs()),
		reconcile.WithLock(reconcile.NewLock()),
	)

	var dashboardCache *analytics.Cache
	if redisClient != nil {
		dashboardCache = analytics.NewCache(redisClient, cfg.CacheTTL)
		if err := dashboardCache.ListenForInvalidation(ctx, analytics.BumpChannel); err != nil {
			logger.Warn("subscribe cache invalidation", slog.Any("error", err))
		}
	}
	dashboard := analytics.NewService(store, dashboardCache, logger)

	analyticsHandler := analytichttp.NewHandler(logger, dashboard)
	analyticsHandler.WithDownloadLimit(cfg.DownloadsPerMinute)
	reconcileHandler := reconcilehttp.NewHandler(logger, engine, dashboard, cfg.UploadMaxBytes)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(redisOpt(cfg))
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AnalyticsHandler: analyticsHandler,
		ReconcileHandler: reconcileHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return cli.ExitError
	}
	return cli.ExitOK
}

func runImport(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.ImportOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.Table, "table", "", "destination: realisasi, target_kanwil or target_kancab")
	fs.StringVar(&opts.Mode, "mode", "append", "append or replace")
	fs.StringVar(&opts.Strategy, "strategy", "local", "local, keyfields or remote")
	fs.StringVar(&opts.AsOf, "as-of", "", "date stamped on target rows (YYYY-MM-DD)")
	fs.BoolVar(&opts.Confirm, "confirm", false, "confirm a replace")
	fs.BoolVar(&opts.RegisterOffices, "register-offices", false, "create kanwil and kancab first seen in the file")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "reconcile against an in-memory copy, writing nothing")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the report as JSON")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.Path, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}
	if opts.Path == "" {
		opts.Path = fs.Arg(0)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "import: load config: %v\n", err)
		return cli.ExitError
	}
	logger := app.NewLoggerTo(cfg, stderr)

	var (
		store       reconcile.Store
		invalidator *analytics.Cache
	)
	pool, err := connectPostgres(ctx, cfg)
	switch {
	case err != nil && !opts.DryRun:
		_, _ = fmt.Fprintf(stderr, "import: %v\n", err)
		return cli.ExitError
	case err != nil:
		logger.Warn("postgres unavailable, dry run starts with no known offices", slog.Any("error", err))
		memory, _ := cli.DryRunStore(ctx, nil)
		store = memory
	default:
		defer pool.Close()
		if opts.DryRun {
			memory, err := cli.DryRunStore(ctx, pgstore.New(pool))
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "import: %v\n", err)
				return cli.ExitError
			}
			store = memory
		} else {
			store = pgstore.New(pool)
		}
	}
	if !opts.DryRun {
		if redisClient, err := connectRedis(ctx, cfg); err == nil {
			defer func() { _ = redisClient.Close() }()
			invalidator = analytics.NewCache(redisClient, cfg.CacheTTL)
		} else {
			logger.Warn("redis unavailable, dashboard cache not invalidated", slog.Any("error", err))
		}
	}

	engine := reconcile.NewEngine(store, logger, cfg.Reconcile())
	command, err := cli.NewImportCLI(engine)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "import: %v\n", err)
		return cli.ExitError
	}
	code := command.ImportCommand(ctx, opts)
	if invalidator != nil && (code == cli.ExitOK || code == cli.ExitPartial) {
		if err := invalidator.Bump(ctx); err != nil {
			logger.Warn("invalidate dashboard cache", slog.Any("error", err))
		}
	}
	return code
}

func runJobs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	sub, args := args[0], args[1:]

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: load config: %v\n", err)
		return cli.ExitError
	}
	jobsCLI := cli.NewJobsCLI(redisOpt(cfg))
	defer func() { _ = jobsCLI.Close() }()

	switch sub {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		opts := cli.TriggerOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.Import.Path, "path", "", "file relative to IMPORT_DIR (reconcile:import)")
		fs.StringVar(&opts.Import.Table, "table", "", "destination table (reconcile:import)")
		fs.StringVar(&opts.Import.Mode, "mode", "", "append or replace (reconcile:import)")
		fs.StringVar(&opts.Import.Strategy, "strategy", "", "local, keyfields or remote (reconcile:import)")
		fs.StringVar(&opts.Import.AsOf, "as-of", "", "target date (reconcile:import)")
		fs.BoolVar(&opts.Import.Confirm, "confirm", false, "confirm a replace (reconcile:import)")
		fs.BoolVar(&opts.Import.RegisterOffices, "register-offices", false, "create unknown offices (reconcile:import)")
		fs.StringVar(&opts.Date, "date", "", "last day of the warmed month (dashboard:warmup)")
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			opts.Name, args = args[0], args[1:]
		}
		if err := fs.Parse(args); err != nil {
			return cli.ExitError
		}
		return jobsCLI.TriggerCommand(ctx, opts)
	case "stats":
		fs := flag.NewFlagSet("jobs stats", flag.ContinueOnError)
		fs.SetOutput(stderr)
		jsonOutput := fs.Bool("json", false, "print statistics as JSON")
		if err := fs.Parse(args); err != nil {
			return cli.ExitError
		}
		return jobsCLI.StatsCommand(ctx, *jsonOutput, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown subcommand %q\n", sub)
		return cli.ExitError
	}
}

func migrate(ctx context.Context, stderr io.Writer) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "migrate: load config: %v\n", err)
		return cli.ExitError
	}
	logger := app.NewLoggerTo(cfg, stderr)
	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return cli.ExitError
	}
	defer pool.Close()

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return pgstore.New(tx).EnsureSchema(ctx)
	})
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return cli.ExitError
	}
	logger.Info("schema ready")
	return cli.ExitOK
}
