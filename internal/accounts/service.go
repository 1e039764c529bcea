package accounts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type repository interface {
	FindEmailConfiguration(ctx context.Context, id uuid.UUID) (*models.EmailConfiguration, error)
	FindSubscriptionByEmailConfiguration(ctx context.Context, configID uuid.UUID) (*models.Subscription, error)
	MarkSubscriptionCanceled(ctx context.Context, stripeSubscriptionID string, deleted bool) error
	DeleteMailOAuthToken(ctx context.Context, id uuid.UUID) error
	DeleteEmailConfiguration(ctx context.Context, id uuid.UUID) error

	FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	MarkSubscriptionsDeletedByUser(ctx context.Context, userID uuid.UUID) error
	MarkLegacySubscriptionCanceled(ctx context.Context, stripeCustomerID string) error
	DeleteMailOAuthTokensByUser(ctx context.Context, userID uuid.UUID) error
	DeleteEmailConfigurationsByUser(ctx context.Context, userID uuid.UUID) error
	SoftDeleteCustomer(ctx context.Context, userID uuid.UUID) error
	SoftDeleteUser(ctx context.Context, userID uuid.UUID) error
}

type providerAPI interface {
	CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

// Service removes email accounts and whole user accounts. Provider
// cancellations are best-effort: a Stripe failure never blocks the local
// deletion, since both sagas are safe to re-run. Local writes are ordered so
// billing is cancelled before the rows that authorize future reconciliation
// disappear.
type Service struct {
	repo     repository
	provider providerAPI
	logg     *logger.Logger
}

// NewService builds the account deletion service.
func NewService(repo repository, provider providerAPI, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, provider: provider, logg: logg}, nil
}

// DeleteEmailAccount removes one mailbox: cancels any subscription linked to
// it, deletes its OAuth token row and finally the configuration itself.
func (s *Service) DeleteEmailAccount(ctx context.Context, userID, configID uuid.UUID) error {
	cfg, err := s.repo.FindEmailConfiguration(ctx, configID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup email configuration")
	}
	if cfg == nil || cfg.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "email configuration not found")
	}

	linked, err := s.repo.FindSubscriptionByEmailConfiguration(ctx, configID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup linked subscription")
	}
	if linked != nil && linked.Status.IsCancellable() {
		s.cancelProviderSubscription(ctx, linked.StripeSubscriptionID)
		if err := s.repo.MarkSubscriptionCanceled(ctx, linked.StripeSubscriptionID, true); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark subscription deleted")
		}
	}

	if cfg.OAuthTokenID != nil {
		if err := s.repo.DeleteMailOAuthToken(ctx, *cfg.OAuthTokenID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete oauth token")
		}
	}
	if err := s.repo.DeleteEmailConfiguration(ctx, configID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete email configuration")
	}

	s.logg.Info(s.logg.WithField(ctx, "email_configuration_id", configID.String()), "email account deleted")
	return nil
}

// DeleteUserAccount removes everything billing knows about a user. The
// provider is cancelled first so a half-finished run still stops charges,
// then local rows are marked and soft-deleted.
func (s *Service) DeleteUserAccount(ctx context.Context, userID uuid.UUID) error {
	ctx = s.logg.WithUserID(ctx, userID.String())

	customer, err := s.repo.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}

	if customer != nil {
		subs, err := s.repo.ListSubscriptionsByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
		}
		for _, sub := range subs {
			if sub.Status.IsCancellable() {
				s.cancelProviderSubscription(ctx, sub.StripeSubscriptionID)
			}
		}
		if err := s.repo.MarkLegacySubscriptionCanceled(ctx, customer.StripeCustomerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark legacy subscription canceled")
		}
	}

	if err := s.repo.MarkSubscriptionsDeletedByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark subscriptions deleted")
	}
	if err := s.repo.DeleteMailOAuthTokensByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete oauth tokens")
	}
	if err := s.repo.DeleteEmailConfigurationsByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete email configurations")
	}
	if err := s.repo.SoftDeleteCustomer(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete customer")
	}
	if err := s.repo.SoftDeleteUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete user")
	}

	s.logg.Info(ctx, "user account deleted")
	return nil
}

func (s *Service) cancelProviderSubscription(ctx context.Context, stripeSubscriptionID string) {
	if _, err := s.provider.CancelSubscription(ctx, stripeSubscriptionID, nil); err != nil {
		entry := s.logg.WithField(ctx, "subscription_id", stripeSubscriptionID)
		s.logg.Error(entry, "provider cancellation failed, continuing deletion", err)
	}
}
