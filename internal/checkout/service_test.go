package checkout

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/internal/reconciler"
	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type stubCheckoutRepo struct {
	customer *models.Customer
	config   *models.EmailConfiguration
}

func (s *stubCheckoutRepo) FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	return s.customer, nil
}

func (s *stubCheckoutRepo) FindEmailConfiguration(ctx context.Context, id uuid.UUID) (*models.EmailConfiguration, error) {
	if s.config != nil && s.config.ID == id {
		return s.config, nil
	}
	return nil, nil
}

type stubCheckoutProvider struct {
	sessionParams *stripe.CheckoutSessionParams
	prices        []*stripe.Price
}

func (s *stubCheckoutProvider) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.sessionParams = params
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
}

func (s *stubCheckoutProvider) ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	return s.prices, nil
}

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		AdditionalAccountPriceID: "price_addon",
		CheckoutSuccessURL:       "https://app.test/billing/success",
		CheckoutCancelURL:        "https://app.test/billing/cancel",
	}
}

func newCheckoutService(t *testing.T, repo *stubCheckoutRepo, provider *stubCheckoutProvider) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(repo, provider, testBillingConfig(), logg)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func TestCreateSessionWithoutCustomer(t *testing.T) {
	svc := newCheckoutService(t, &stubCheckoutRepo{}, &stubCheckoutProvider{})

	_, err := svc.CreateAddAccountSession(context.Background(), uuid.New(), CreateSessionInput{})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateSessionCarriesMetadata(t *testing.T) {
	userID := uuid.New()
	configID := uuid.New()
	repo := &stubCheckoutRepo{
		customer: &models.Customer{UserID: userID, StripeCustomerID: "cus_1"},
		config:   &models.EmailConfiguration{ID: configID, UserID: userID},
	}
	provider := &stubCheckoutProvider{}
	svc := newCheckoutService(t, repo, provider)

	result, err := svc.CreateAddAccountSession(context.Background(), userID, CreateSessionInput{
		EmailConfigurationID: &configID,
		Quantity:             2,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.SessionID != "cs_1" || result.URL == "" {
		t.Fatalf("unexpected result %+v", result)
	}

	params := provider.sessionParams
	if params.SubscriptionData == nil {
		t.Fatalf("subscription metadata missing")
	}
	meta := params.SubscriptionData.Metadata
	if meta[reconciler.MetadataKeySubscriptionType] != "additional_account" {
		t.Fatalf("subscription type metadata missing")
	}
	if meta[reconciler.MetadataKeyUserID] != userID.String() {
		t.Fatalf("user id metadata missing")
	}
	if meta[reconciler.MetadataKeyEmailConfigurationID] != configID.String() {
		t.Fatalf("configuration metadata missing")
	}
	if len(params.LineItems) != 1 || *params.LineItems[0].Quantity != 2 {
		t.Fatalf("unexpected line items")
	}
}

func TestCreateSessionRejectsForeignConfig(t *testing.T) {
	userID := uuid.New()
	configID := uuid.New()
	repo := &stubCheckoutRepo{
		customer: &models.Customer{UserID: userID, StripeCustomerID: "cus_1"},
		config:   &models.EmailConfiguration{ID: configID, UserID: uuid.New()},
	}
	svc := newCheckoutService(t, repo, &stubCheckoutProvider{})

	_, err := svc.CreateAddAccountSession(context.Background(), userID, CreateSessionInput{
		EmailConfigurationID: &configID,
	})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPricesMapsFields(t *testing.T) {
	provider := &stubCheckoutProvider{prices: []*stripe.Price{
		{
			ID:         "price_premier",
			Nickname:   "Premier",
			UnitAmount: 4900,
			Currency:   stripe.CurrencyUSD,
			Recurring:  &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth},
		},
	}}
	svc := newCheckoutService(t, &stubCheckoutRepo{}, provider)

	prices, err := svc.ListPrices(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(prices) != 1 {
		t.Fatalf("expected one price")
	}
	p := prices[0]
	if p.ID != "price_premier" || p.UnitAmount != 4900 || p.Interval != "month" {
		t.Fatalf("unexpected price %+v", p)
	}
}
