package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/ramahallia/mailflow-backend/api/routes"
	"github.com/ramahallia/mailflow-backend/internal/accounts"
	"github.com/ramahallia/mailflow-backend/internal/billing"
	checkoutsvc "github.com/ramahallia/mailflow-backend/internal/checkout"
	invoicesvc "github.com/ramahallia/mailflow-backend/internal/invoices"
	"github.com/ramahallia/mailflow-backend/internal/reconciler"
	subsvc "github.com/ramahallia/mailflow-backend/internal/subscriptions"
	stripewebhook "github.com/ramahallia/mailflow-backend/internal/webhooks/stripe"
	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/db"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
	"github.com/ramahallia/mailflow-backend/pkg/migrate"
	"github.com/ramahallia/mailflow-backend/pkg/redis"
	pkgstripe "github.com/ramahallia/mailflow-backend/pkg/stripe"
	"github.com/joho/godotenv"
)

const webhookIdempotencyTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	subscriptionService, err := subsvc.NewService(subsvc.ServiceParams{
		Repo:         repo,
		Provider:     provider,
		Reconciler:   reconcileService,
		AddonPriceID: cfg.Billing.AdditionalAccountPriceID,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	accountService, err := accounts.NewService(repo, provider, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create account service", err)
		os.Exit(1)
	}

	invoiceService, err := invoicesvc.NewService(repo, provider, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(repo, provider, cfg.Billing, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repo:       repo,
		Reconciler: reconcileService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			subscriptionService,
			accountService,
			checkoutService,
			invoiceService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
