package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/newsline/newsline/cmd/newsline/cli"
	"github.com/newsline/newsline/internal/allotments"
	"github.com/newsline/newsline/internal/app"
	"github.com/newsline/newsline/internal/auth"
	"github.com/newsline/newsline/internal/billing"
	"github.com/newsline/newsline/internal/billing/export"
	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/customers"
	"github.com/newsline/newsline/internal/deliveries"
	"github.com/newsline/newsline/internal/notifications"
	"github.com/newsline/newsline/internal/observability"
	"github.com/newsline/newsline/internal/platform/cache"
	"github.com/newsline/newsline/internal/platform/db"
	"github.com/newsline/newsline/internal/shared"
	"github.com/newsline/newsline/jobs"
	"github.com/newsline/newsline/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, StatementTimeout: cfg.DBTimeout})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	verifier := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer, logger)

	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL, catalog.NewRepository(pool), logger)

	var publisher billing.Publisher
	if cfg.NotifyEnabled {
		jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		publisher = billing.NewTaskPublisher(jobsClient)
	}

	billingService := billing.NewService(billing.ServiceDeps{
		Repo:       billing.NewRepository(pool),
		Aggregator: billing.NewAggregator(deliveries.NewRepository(pool), catalogCache),
		Allotments: allotments.NewRepository(pool),
		Customers:  customers.NewRepository(pool),
		Publisher:  publisher,
		Audit:      shared.NewAuditLogger(pool),
		Metrics:    billing.NewMetrics(metrics.Registerer()),
		Logger:     logger,
		DBTimeout:  cfg.DBTimeout,
	})

	reportClient := report.NewClient(cfg.GotenbergURL)
	pdfRenderer, err := export.NewPDFRenderer(reportClient, cfg.CurrencySymbol)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}
	billingHandler := billing.NewHandler(billingService, logger, billing.Limits{
		PreviewPerMinute:  cfg.PreviewRateLimit,
		GeneratePerMinute: cfg.GenerateRateLimit,
	}).
		WithRenderer("csv", export.NewCSVRenderer()).
		WithRenderer("pdf", pdfRenderer)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Verifier:             verifier,
		BillingHandler:       billingHandler,
		NotificationsHandler: notifications.NewHandler(notifications.NewRepository(pool), logger),
		CatalogHandler:       catalog.NewHandler(catalogCache, logger),
		JobHandler:           jobs.NewHandler(inspector, logger),
		ReportHandler:        report.NewHandler(reportClient, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
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
	}
}

// runJobs implements `newsline jobs <stats|archived|retry-archived|trigger NAME>`.
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: newsline jobs <stats|archived|retry-archived|trigger NAME>")
	}
	ops, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = ops.Close() }()

	switch args[0] {
	case "stats":
		stats, err := ops.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "archived":
		tasks, err := ops.ListArchived(ctx, 20)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			fmt.Printf("%s\t%s\t%s\n", task.ID, task.Type, task.LastErr)
		}
	case "retry-archived":
		n, err := ops.RetryArchived(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d tasks\n", n)
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: newsline jobs trigger NAME")
		}
		info, err := ops.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s)\n", info.ID, info.Type)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
