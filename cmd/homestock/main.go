package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/homestock/homestock/cmd/homestock/cli"
	"github.com/homestock/homestock/internal/analytics"
	analytichttp "github.com/homestock/homestock/internal/analytics/http"
	"github.com/homestock/homestock/internal/app"
	"github.com/homestock/homestock/internal/integration"
	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/notify"
	"github.com/homestock/homestock/internal/observability"
	"github.com/homestock/homestock/internal/platform/cache"
	"github.com/homestock/homestock/internal/platform/db"
	"github.com/homestock/homestock/internal/shared"
	"github.com/homestock/homestock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:]))
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("homestock", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		slog.Default().Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer jobsCLI.Close()
	return jobsCLI.JobsCommand(ctx, args, cli.JobsCommandOptions{Stdout: os.Stdout, Stderr: os.Stderr})
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ConnectTimeout: 10 * time.Second})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	analyticsCache := analytics.NewCache(redisClient, cfg.CacheTTL)
	analyticsService := analytics.NewService(analytics.NewRepository(pool), analyticsCache, analytics.Config{
		Location: cfg.Location(),
	})
	if err := analyticsCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("analytics cache invalidation listener", slog.Any("error", err))
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	notifier := notify.NewLowStockNotifier(jobClient, redisClient, notify.NotifierConfig{
		Threshold: cfg.LowStockThreshold,
		Cooldown:  cfg.AlertCooldown,
		Logger:    logger,
	})
	hooks := integration.NewHooks(analyticsService, metrics, notifier, logger)

	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		shared.NewIdempotencyStore(pool),
		inventory.ServiceConfig{Logger: logger},
		hooks,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		AnalyticsHandler: analytichttp.NewHandler(logger, analyticsService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		RequestLog:       true,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", cfg.Location().String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
