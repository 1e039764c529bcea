package subscriptions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/internal/reconciler"
	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/enums"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

const prorationAlwaysInvoice = "always_invoice"

type repository interface {
	FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	MarkSubscriptionCanceled(ctx context.Context, stripeSubscriptionID string, deleted bool) error
	FindPrimaryEmailConfiguration(ctx context.Context, userID uuid.UUID) (*models.EmailConfiguration, error)
	SetEmailConfigurationActive(ctx context.Context, id uuid.UUID, active bool) error
	ListEmailConfigurations(ctx context.Context, userID uuid.UUID) ([]models.EmailConfiguration, error)
}

type providerAPI interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CreateSubscriptionItem(ctx context.Context, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	UpdateSubscriptionItem(ctx context.Context, id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	DeleteSubscriptionItem(ctx context.Context, id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
}

type reconcileRunner interface {
	Reconcile(ctx context.Context, stripeCustomerID string) (int, error)
}

// Service implements the subscription action endpoints. Each action performs
// exactly one provider mutation, then reconciles or applies a narrow
// compensating write.
type Service struct {
	repo         repository
	provider     providerAPI
	reconciler   reconcileRunner
	addonPriceID string
	logg         *logger.Logger
}

// ServiceParams groups dependencies for the subscription action service.
type ServiceParams struct {
	Repo         repository
	Provider     providerAPI
	Reconciler   reconcileRunner
	AddonPriceID string
	Logger       *logger.Logger
}

// NewService builds the subscription action service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if strings.TrimSpace(params.AddonPriceID) == "" {
		return nil, fmt.Errorf("additional account price id required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:         params.Repo,
		provider:     params.Provider,
		reconciler:   params.Reconciler,
		addonPriceID: strings.TrimSpace(params.AddonPriceID),
		logg:         params.Logger,
	}, nil
}

// ownedSubscription loads the row and checks it belongs to the caller.
// Foreign rows come back as not found so existence is not leaked.
func (s *Service) ownedSubscription(ctx context.Context, userID uuid.UUID, stripeSubscriptionID string) (*models.Subscription, error) {
	row, err := s.repo.FindSubscriptionByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup subscription")
	}
	if row == nil || row.UserID != userID || row.DeletedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return row, nil
}

// Cancel schedules a subscription for cancellation at period end. Addon
// subscriptions holding more than one seat release a single seat instead of
// cancelling outright.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, input CancelInput) (*CancelResult, error) {
	row, err := s.ownedSubscription(ctx, userID, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !row.Status.IsCancellable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("subscription in status %q cannot be cancelled", row.Status))
	}

	ctx = s.logg.WithCustomerID(ctx, row.CustomerID)

	if row.SubscriptionType == enums.SubscriptionTypeAdditionalAccount && row.Quantity > 1 {
		if err := s.decrementAddonQuantity(ctx, row); err != nil {
			return nil, err
		}
		s.afterMutation(ctx, row.CustomerID, input.EmailConfigurationID, row.StripeSubscriptionID)
		return &CancelResult{
			SubscriptionID:   row.StripeSubscriptionID,
			QuantityReleased: true,
		}, nil
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	if _, err := s.provider.UpdateSubscription(ctx, row.StripeSubscriptionID, params); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule cancellation")
	}
	s.afterMutation(ctx, row.CustomerID, input.EmailConfigurationID, row.StripeSubscriptionID)
	return &CancelResult{
		SubscriptionID:    row.StripeSubscriptionID,
		CancelAtPeriodEnd: true,
	}, nil
}

func (s *Service) decrementAddonQuantity(ctx context.Context, row *models.Subscription) error {
	sub, err := s.provider.GetSubscription(ctx, row.StripeSubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription")
	}
	item := firstItem(sub)
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "subscription has no line items")
	}
	params := &stripe.SubscriptionItemParams{
		Quantity:          stripe.Int64(item.Quantity - 1),
		ProrationBehavior: stripe.String(prorationAlwaysInvoice),
	}
	if _, err := s.provider.UpdateSubscriptionItem(ctx, item.ID, params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement quantity")
	}
	return nil
}

// afterMutation either marks one linkage row deleted or falls back to a full
// reconcile. Reconcile failures here are logged, not surfaced: the provider
// mutation already succeeded and the next webhook repairs local state.
func (s *Service) afterMutation(ctx context.Context, customerID string, configID *uuid.UUID, stripeSubscriptionID string) {
	if configID != nil {
		if err := s.repo.MarkSubscriptionCanceled(ctx, stripeSubscriptionID, true); err != nil {
			s.logg.Error(ctx, "compensating subscription delete failed", err)
		}
		return
	}
	if _, err := s.reconciler.Reconcile(ctx, customerID); err != nil {
		s.logg.Error(ctx, "post-mutation reconcile failed", err)
	}
}

// Reactivate clears a pending cancellation.
func (s *Service) Reactivate(ctx context.Context, userID uuid.UUID, input ReactivateInput) (*ReactivateResult, error) {
	row, err := s.ownedSubscription(ctx, userID, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !row.CancelAtPeriodEnd {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not scheduled for cancellation")
	}

	ctx = s.logg.WithCustomerID(ctx, row.CustomerID)

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	if _, err := s.provider.UpdateSubscription(ctx, row.StripeSubscriptionID, params); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cancellation")
	}

	if row.SubscriptionType == enums.SubscriptionTypePremier {
		primary, err := s.repo.FindPrimaryEmailConfiguration(ctx, userID)
		if err != nil {
			s.logg.Error(ctx, "primary configuration lookup failed", err)
		} else if primary != nil && !primary.IsActive {
			if err := s.repo.SetEmailConfigurationActive(ctx, primary.ID, true); err != nil {
				s.logg.Error(ctx, "primary configuration activation failed", err)
			}
		}
	}

	if _, err := s.reconciler.Reconcile(ctx, row.CustomerID); err != nil {
		s.logg.Error(ctx, "post-mutation reconcile failed", err)
	}
	return &ReactivateResult{SubscriptionID: row.StripeSubscriptionID}, nil
}

// UpdateQuantity sets the additional-account line item to the requested
// count. Zero removes the item entirely.
func (s *Service) UpdateQuantity(ctx context.Context, userID uuid.UUID, input UpdateQuantityInput) (*UpdateQuantityResult, error) {
	if input.AdditionalAccounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "additional_accounts is required")
	}
	desired := *input.AdditionalAccounts
	if desired < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "additional_accounts cannot be negative")
	}

	row, err := s.ownedSubscription(ctx, userID, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !row.Status.IsHealthy() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("subscription in status %q cannot change quantity", row.Status))
	}

	ctx = s.logg.WithCustomerID(ctx, row.CustomerID)

	sub, err := s.provider.GetSubscription(ctx, row.StripeSubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription")
	}
	addonItem := s.findAddonItem(sub)

	switch {
	case desired == 0 && addonItem != nil:
		params := &stripe.SubscriptionItemParams{
			ProrationBehavior: stripe.String(prorationAlwaysInvoice),
		}
		if _, err := s.provider.DeleteSubscriptionItem(ctx, addonItem.ID, params); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove addon item")
		}
	case desired > 0 && addonItem != nil:
		params := &stripe.SubscriptionItemParams{
			Quantity:          stripe.Int64(desired),
			ProrationBehavior: stripe.String(prorationAlwaysInvoice),
		}
		if _, err := s.provider.UpdateSubscriptionItem(ctx, addonItem.ID, params); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update addon quantity")
		}
	case desired > 0:
		params := &stripe.SubscriptionItemParams{
			Subscription:      stripe.String(row.StripeSubscriptionID),
			Price:             stripe.String(s.addonPriceID),
			Quantity:          stripe.Int64(desired),
			ProrationBehavior: stripe.String(prorationAlwaysInvoice),
		}
		if _, err := s.provider.CreateSubscriptionItem(ctx, params); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create addon item")
		}
	}

	s.refreshSupportMetadata(ctx, userID, row.StripeSubscriptionID)

	if _, err := s.reconciler.Reconcile(ctx, row.CustomerID); err != nil {
		s.logg.Error(ctx, "post-mutation reconcile failed", err)
	}
	return &UpdateQuantityResult{
		SubscriptionID:     row.StripeSubscriptionID,
		AdditionalAccounts: desired,
	}, nil
}

// refreshSupportMetadata mirrors the user's mailbox addresses onto the
// provider subscription so support can see them without a database lookup.
// Best-effort.
func (s *Service) refreshSupportMetadata(ctx context.Context, userID uuid.UUID, stripeSubscriptionID string) {
	configs, err := s.repo.ListEmailConfigurations(ctx, userID)
	if err != nil {
		s.logg.Error(ctx, "configuration listing for metadata failed", err)
		return
	}
	var primary string
	var additional []string
	for _, cfg := range configs {
		if cfg.IsPrimary {
			primary = cfg.EmailAddress
			continue
		}
		additional = append(additional, cfg.EmailAddress)
	}
	params := &stripe.SubscriptionParams{}
	params.AddMetadata(reconciler.MetadataKeyPrimaryEmail, primary)
	params.AddMetadata(reconciler.MetadataKeyAdditionalEmails, strings.Join(additional, ","))
	if _, err := s.provider.UpdateSubscription(ctx, stripeSubscriptionID, params); err != nil {
		s.logg.Error(ctx, "metadata refresh failed", err)
	}
}

// ForceSync runs a full reconcile for the caller's customer. Manual repair
// tool for missed webhooks.
func (s *Service) ForceSync(ctx context.Context, userID uuid.UUID) (*SyncResult, error) {
	customer, err := s.repo.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}
	if customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no billing customer for user")
	}
	synced, err := s.reconciler.Reconcile(ctx, customer.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	return &SyncResult{CustomerID: customer.StripeCustomerID, Synced: synced}, nil
}

// findAddonItem locates the additional-account line item on a provider
// subscription.
func (s *Service) findAddonItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil {
		return nil
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID == s.addonPriceID {
			return item
		}
	}
	return nil
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}
