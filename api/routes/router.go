package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramahallia/mailflow-backend/api/controllers"
	accountcontrollers "github.com/ramahallia/mailflow-backend/api/controllers/accounts"
	checkoutcontrollers "github.com/ramahallia/mailflow-backend/api/controllers/checkout"
	invoicecontrollers "github.com/ramahallia/mailflow-backend/api/controllers/invoices"
	subscriptioncontrollers "github.com/ramahallia/mailflow-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/ramahallia/mailflow-backend/api/controllers/webhooks"
	"github.com/ramahallia/mailflow-backend/api/middleware"
	stripewebhook "github.com/ramahallia/mailflow-backend/internal/webhooks/stripe"
	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/db"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
	"github.com/ramahallia/mailflow-backend/pkg/redis"
	"github.com/ramahallia/mailflow-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	subscriptionService subscriptioncontrollers.SubscriptionService,
	accountService accountcontrollers.AccountService,
	checkoutService checkoutcontrollers.CheckoutService,
	invoiceService invoicecontrollers.InvoiceService,
	stripeClient *stripe.Client,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	apiPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.AuthRateLimit.Window,
		cfg.AuthRateLimit.IPLimit,
	)
	if cfg.AuthRateLimit.Disabled {
		apiPolicy = middleware.RateLimitPolicy{}
	}
	rateLimit := func(next http.Handler) http.Handler { return next }
	var redisPinger redis.Pinger
	if redisClient != nil {
		rateLimit = middleware.RateLimit(apiPolicy, redisClient, logg)
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	// Pricing renders before sign-in, so the price list stays public.
	r.Get("/api/v1/checkout/prices", checkoutcontrollers.ListPrices(checkoutService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(rateLimit)

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/cancel", subscriptioncontrollers.Cancel(subscriptionService, logg))
			r.Post("/reactivate", subscriptioncontrollers.Reactivate(subscriptionService, logg))
			r.Put("/quantity", subscriptioncontrollers.UpdateQuantity(subscriptionService, logg))
			r.Post("/sync", subscriptioncontrollers.Sync(subscriptionService, logg))
		})

		r.Post("/checkout/sessions", checkoutcontrollers.CreateSession(checkoutService, logg))

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", invoicecontrollers.List(invoiceService, logg))
			r.Post("/sync", invoicecontrollers.Sync(invoiceService, logg))
			r.Get("/{invoiceId}/download", invoicecontrollers.Download(invoiceService, logg))
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Delete("/email/{configId}", accountcontrollers.DeleteEmailAccount(accountService, logg))
			r.Delete("/me", accountcontrollers.DeleteUserAccount(accountService, logg))
		})
	})

	return r
}
