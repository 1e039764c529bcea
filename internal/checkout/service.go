package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/internal/reconciler"
	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/enums"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type repository interface {
	FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	FindEmailConfiguration(ctx context.Context, id uuid.UUID) (*models.EmailConfiguration, error)
}

type providerAPI interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error)
}

// CreateSessionInput requests a hosted checkout for one additional mailbox
// subscription. The optional configuration id pre-links the subscription
// through checkout metadata.
type CreateSessionInput struct {
	EmailConfigurationID *uuid.UUID `json:"email_configuration_id,omitempty"`
	Quantity             int64      `json:"quantity" validate:"omitempty,min=1,max=25"`
}

// SessionResult carries the hosted checkout handle back to the client.
type SessionResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PriceInfo is the public view of a purchasable price.
type PriceInfo struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname,omitempty"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval,omitempty"`
}

// Service creates checkout sessions and lists purchasable prices.
type Service struct {
	repo     repository
	provider providerAPI
	cfg      config.BillingConfig
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(repo repository, provider providerAPI, cfg config.BillingConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if strings.TrimSpace(cfg.AdditionalAccountPriceID) == "" {
		return nil, fmt.Errorf("additional account price id required")
	}
	if strings.TrimSpace(cfg.CheckoutSuccessURL) == "" || strings.TrimSpace(cfg.CheckoutCancelURL) == "" {
		return nil, fmt.Errorf("checkout redirect urls required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, provider: provider, cfg: cfg, logg: logg}, nil
}

// CreateAddAccountSession opens a subscription-mode checkout for the addon
// price. The metadata written here is what classification and link
// resolution read back after the webhook lands.
func (s *Service) CreateAddAccountSession(ctx context.Context, userID uuid.UUID, input CreateSessionInput) (*SessionResult, error) {
	customer, err := s.repo.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}
	if customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no billing customer for user")
	}

	metadata := map[string]string{
		reconciler.MetadataKeySubscriptionType: enums.SubscriptionTypeAdditionalAccount.String(),
		reconciler.MetadataKeyUserID:           userID.String(),
	}
	if input.EmailConfigurationID != nil {
		cfg, err := s.repo.FindEmailConfiguration(ctx, *input.EmailConfigurationID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup email configuration")
		}
		if cfg == nil || cfg.UserID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "email configuration not found")
		}
		metadata[reconciler.MetadataKeyEmailConfigurationID] = cfg.ID.String()
	}

	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customer.StripeCustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.AdditionalAccountPriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		SuccessURL: stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.cfg.CheckoutCancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}

	session, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	ctx = s.logg.WithCustomerID(ctx, customer.StripeCustomerID)
	s.logg.Info(s.logg.WithField(ctx, "session_id", session.ID), "checkout session created")
	return &SessionResult{SessionID: session.ID, URL: session.URL}, nil
}

// ListPrices returns the active recurring prices.
func (s *Service) ListPrices(ctx context.Context) ([]PriceInfo, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
		Type:   stripe.String("recurring"),
	}
	prices, err := s.provider.ListPrices(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list prices")
	}

	infos := make([]PriceInfo, 0, len(prices))
	for _, p := range prices {
		if p == nil {
			continue
		}
		info := PriceInfo{
			ID:         p.ID,
			Nickname:   p.Nickname,
			UnitAmount: p.UnitAmount,
			Currency:   string(p.Currency),
		}
		if p.Recurring != nil {
			info.Interval = string(p.Recurring.Interval)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
