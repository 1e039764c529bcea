package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/internal/invoices"
	"github.com/ramahallia/mailflow-backend/internal/reconciler"
	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/enums"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type repository interface {
	FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error)
	UpsertInvoice(ctx context.Context, invoice *models.Invoice) error
	CreateOrder(ctx context.Context, order *models.Order) error
}

type reconcileRunner interface {
	Reconcile(ctx context.Context, stripeCustomerID string) (int, error)
}

// ServiceParams groups dependencies for the webhook dispatcher.
type ServiceParams struct {
	Repo       repository
	Reconciler reconcileRunner
	Logger     *logger.Logger
}

// Service routes verified Stripe events. It never interprets status
// transitions itself: any billing change triggers a full reconcile, which
// re-derives local state from the provider snapshot. That keeps processing
// correct under out-of-order delivery.
type Service struct {
	repo       repository
	reconciler reconcileRunner
	logg       *logger.Logger
}

// NewService builds the webhook dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:       params.Repo,
		reconciler: params.Reconciler,
		logg:       params.Logger,
	}, nil
}

// HandleEvent processes one verified event. Events without a customer on
// their payload object are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	customerID := event.GetObjectValue("customer")
	if customerID == "" {
		return nil
	}
	ctx = s.logg.WithCustomerID(s.logg.WithField(ctx, "event_type", string(event.Type)), customerID)

	switch event.Type {
	case stripe.EventTypeInvoicePaymentSucceeded:
		if err := s.persistInvoice(ctx, event, customerID); err != nil {
			return err
		}
		return s.reconcile(ctx, customerID)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeInvoicePaymentFailed:
		return s.reconcile(ctx, customerID)

	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event, customerID)

	default:
		return nil
	}
}

func (s *Service) reconcile(ctx context.Context, customerID string) error {
	if _, err := s.reconciler.Reconcile(ctx, customerID); err != nil {
		return err
	}
	return nil
}

func (s *Service) persistInvoice(ctx context.Context, event *stripe.Event, customerID string) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
	}

	customer, err := s.repo.FindCustomerByStripeID(ctx, customerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}
	if customer == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "customer is not registered")
	}

	row, err := invoices.RowFromStripe(&inv, customer.UserID, customerID)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertInvoice(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert invoice")
	}
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event, customerID string) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}

	if session.Mode == stripe.CheckoutSessionModeSubscription {
		return s.reconcile(ctx, customerID)
	}

	// One-time payments become advisory order rows, disjoint from the
	// subscription flow.
	if session.Mode != stripe.CheckoutSessionModePayment ||
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil
	}

	userID, err := s.resolveUserID(ctx, customerID, session.Metadata)
	if err != nil {
		return err
	}
	order := &models.Order{
		ID:                uuid.New(),
		UserID:            userID,
		CheckoutSessionID: session.ID,
		CustomerID:        &customerID,
		AmountTotal:       session.AmountTotal,
		Currency:          string(session.Currency),
		PaymentStatus:     enums.PaymentStatusPaid,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	return nil
}

func (s *Service) resolveUserID(ctx context.Context, customerID string, metadata map[string]string) (uuid.UUID, error) {
	customer, err := s.repo.FindCustomerByStripeID(ctx, customerID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}
	if customer != nil {
		return customer.UserID, nil
	}
	if raw := metadata[reconciler.MetadataKeyUserID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer is not registered")
}

