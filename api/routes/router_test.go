package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v84"

	checkoutsvc "github.com/ramahallia/mailflow-backend/internal/checkout"
	subsvc "github.com/ramahallia/mailflow-backend/internal/subscriptions"
	stripewebhook "github.com/ramahallia/mailflow-backend/internal/webhooks/stripe"
	pkgAuth "github.com/ramahallia/mailflow-backend/pkg/auth"
	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
	"github.com/ramahallia/mailflow-backend/pkg/stripe"
)

type stubSubscriptionService struct {
	syncCalls int
}

func (s *stubSubscriptionService) Cancel(ctx context.Context, userID uuid.UUID, input subsvc.CancelInput) (*subsvc.CancelResult, error) {
	return &subsvc.CancelResult{SubscriptionID: input.SubscriptionID, CancelAtPeriodEnd: true}, nil
}

func (s *stubSubscriptionService) Reactivate(ctx context.Context, userID uuid.UUID, input subsvc.ReactivateInput) (*subsvc.ReactivateResult, error) {
	return &subsvc.ReactivateResult{SubscriptionID: input.SubscriptionID}, nil
}

func (s *stubSubscriptionService) UpdateQuantity(ctx context.Context, userID uuid.UUID, input subsvc.UpdateQuantityInput) (*subsvc.UpdateQuantityResult, error) {
	return &subsvc.UpdateQuantityResult{SubscriptionID: input.SubscriptionID}, nil
}

func (s *stubSubscriptionService) ForceSync(ctx context.Context, userID uuid.UUID) (*subsvc.SyncResult, error) {
	s.syncCalls++
	return &subsvc.SyncResult{CustomerID: "cus_1", Synced: 1}, nil
}

type stubAccountService struct{}

func (stubAccountService) DeleteEmailAccount(ctx context.Context, userID, configID uuid.UUID) error {
	return nil
}

func (stubAccountService) DeleteUserAccount(ctx context.Context, userID uuid.UUID) error {
	return nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) CreateAddAccountSession(ctx context.Context, userID uuid.UUID, input checkoutsvc.CreateSessionInput) (*checkoutsvc.SessionResult, error) {
	return &checkoutsvc.SessionResult{SessionID: "cs_1", URL: "https://example.test/cs_1"}, nil
}

func (stubCheckoutService) ListPrices(ctx context.Context) ([]checkoutsvc.PriceInfo, error) {
	return []checkoutsvc.PriceInfo{{ID: "price_1", UnitAmount: 500, Currency: "usd"}}, nil
}

type stubInvoiceService struct{}

func (stubInvoiceService) Sync(ctx context.Context, userID uuid.UUID) (int, error) {
	return 0, nil
}

func (stubInvoiceService) List(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	return nil, nil
}

func (stubInvoiceService) DownloadURL(ctx context.Context, userID uuid.UUID, invoiceID string) (string, error) {
	return "", nil
}

type nopWebhookService struct{}

func (nopWebhookService) HandleEvent(ctx context.Context, event *stripego.Event) error {
	return nil
}

type nopIdempotencyStore struct{}

func (nopIdempotencyStore) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (nopIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return true, nil
}

func (nopIdempotencyStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (nopIdempotencyStore) Del(ctx context.Context, keys ...string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "test-secret",
			Issuer:            "mailflow-test",
			ExpirationMinutes: 15,
		},
		AuthRateLimit: config.AuthRateLimitConfig{Disabled: true},
	}
}

func newTestRouter(t *testing.T, subs *stubSubscriptionService) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "router-test"})
	stripeClient, err := stripe.NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_test",
		Env:           "test",
	}, logg)
	if err != nil {
		t.Fatalf("stripe client: %v", err)
	}
	guard, err := stripewebhook.NewIdempotencyGuard(nopIdempotencyStore{}, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	return NewRouter(
		testConfig(),
		logg,
		nil,
		nil,
		subs,
		stubAccountService{},
		stubCheckoutService{},
		stubInvoiceService{},
		stripeClient,
		nopWebhookService{},
		guard,
	)
}

func mintToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Email:  "person@example.test",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubSubscriptionService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Mailflow-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestRouterMetricsExposed(t *testing.T) {
	router := newTestRouter(t, &stubSubscriptionService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterPricesArePublic(t *testing.T) {
	router := newTestRouter(t, &stubSubscriptionService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/prices", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without credentials, got %d", rec.Code)
	}
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, &stubSubscriptionService{})

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/subscriptions/sync"},
		{http.MethodPost, "/api/v1/checkout/sessions"},
		{http.MethodGet, "/api/v1/invoices"},
		{http.MethodDelete, "/api/v1/accounts/me"},
	}
	for _, target := range targets {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(target.method, target.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", target.method, target.path, rec.Code)
		}
	}
}

func TestRouterAuthorizedSubscriptionSync(t *testing.T) {
	service := &stubSubscriptionService{}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/sync", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.syncCalls != 1 {
		t.Fatalf("expected service invoked once, got %d", service.syncCalls)
	}

	var envelope struct {
		Data subsvc.SyncResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Synced != 1 {
		t.Fatalf("unexpected sync count %d", envelope.Data.Synced)
	}
}

func TestRouterCancelValidatesPayload(t *testing.T) {
	router := newTestRouter(t, &stubSubscriptionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/cancel", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+mintToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty payload, got %d", rec.Code)
	}
}

func TestRouterWebhookRejectsUnsignedPayload(t *testing.T) {
	router := newTestRouter(t, &stubSubscriptionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
}
