package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ramahallia/mailflow-backend/internal/billing"
	"github.com/ramahallia/mailflow-backend/internal/cron"
	"github.com/ramahallia/mailflow-backend/internal/reconciler"
	subsvc "github.com/ramahallia/mailflow-backend/internal/subscriptions"
	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/db"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
	"github.com/ramahallia/mailflow-backend/pkg/metrics"
	"github.com/ramahallia/mailflow-backend/pkg/migrate"
	"github.com/ramahallia/mailflow-backend/pkg/redis"
	pkgstripe "github.com/ramahallia/mailflow-backend/pkg/stripe"
)

const lockKeyFormat = "mf:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to initialize stripe", err)
		os.Exit(1)
	}

	provider, err := subsvc.NewStripeClient(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build stripe provider client", err)
		os.Exit(1)
	}

	repo := billing.NewRepository(dbClient.DB())

	reconcileService, err := reconciler.NewService(repo, provider, cfg.Billing.AdditionalAccountPriceID, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReconcileSweepJob(cron.ReconcileSweepJobParams{
		Logger:     logg,
		Repo:       repo,
		Reconciler: reconcileService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile sweep job", err)
		os.Exit(1)
	}

	orphanJob, err := cron.NewOrphanCleanupJob(cron.OrphanCleanupJobParams{
		Logger:   logg,
		Repo:     repo,
		Provider: provider,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan cleanup job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.Register(sweepJob)
	registry.Register(orphanJob)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
