package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/enums"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

// SubscriptionLister is the slice of the billing provider the reconciler
// needs: a full subscription listing for one customer, all statuses.
type SubscriptionLister interface {
	ListAllSubscriptions(ctx context.Context, stripeCustomerID string) ([]*stripe.Subscription, error)
}

// Repository is the slice of the billing repository the reconciler writes
// through.
type Repository interface {
	FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error)
	ListSubscriptionsByCustomer(ctx context.Context, stripeCustomerID string) ([]models.Subscription, error)
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) error
	UpsertLegacySubscription(ctx context.Context, legacy *models.LegacySubscription) error
	ListEmailConfigurations(ctx context.Context, userID uuid.UUID) ([]models.EmailConfiguration, error)
	ActivateEmailConfigurations(ctx context.Context, userID uuid.UUID) error
	DeactivateSecondaryEmailConfigurations(ctx context.Context, userID uuid.UUID) error
}

// Service re-derives local billing state from the provider's snapshot.
// Reconcile is idempotent and safe to run concurrently for the same
// customer: every write is an upsert keyed on a stable external id, and a
// subscription's persisted email link is never recomputed.
type Service struct {
	repo         Repository
	provider     SubscriptionLister
	addonPriceID string
	logg         *logger.Logger
}

// NewService builds a reconciler service.
func NewService(repo Repository, provider SubscriptionLister, addonPriceID string, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if addonPriceID == "" {
		return nil, fmt.Errorf("additional account price id required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:         repo,
		provider:     provider,
		addonPriceID: addonPriceID,
		logg:         logg,
	}, nil
}

// Reconcile syncs every provider subscription for the customer into local
// rows, rebuilds the legacy projection and toggles email configuration
// activation. It returns the number of subscriptions synced. Per-subscription
// write failures are accumulated so one bad row does not block the rest.
func (s *Service) Reconcile(ctx context.Context, stripeCustomerID string) (int, error) {
	ctx = s.logg.WithCustomerID(ctx, stripeCustomerID)

	customer, err := s.repo.FindCustomerByStripeID(ctx, stripeCustomerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}
	if customer == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "customer is not registered")
	}

	subs, err := s.provider.ListAllSubscriptions(ctx, stripeCustomerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list provider subscriptions")
	}

	if len(subs) == 0 {
		legacy := &models.LegacySubscription{
			ID:         uuid.New(),
			UserID:     customer.UserID,
			CustomerID: stripeCustomerID,
			Status:     enums.SubscriptionStatusNotStarted,
		}
		if err := s.repo.UpsertLegacySubscription(ctx, legacy); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert legacy subscription")
		}
		s.logg.Info(ctx, "customer has no provider subscriptions, legacy row reset")
		return 0, nil
	}

	// Earliest-created subscriptions claim configurations first, which keeps
	// auto-assignment deterministic across repeated runs.
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Created < subs[j].Created })

	configs, err := s.repo.ListEmailConfigurations(ctx, customer.UserID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list email configurations")
	}

	persisted, err := s.repo.ListSubscriptionsByCustomer(ctx, stripeCustomerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list persisted subscriptions")
	}
	persistedByID := make(map[string]*models.Subscription, len(persisted))
	claimed := make(map[uuid.UUID]bool)
	for i := range persisted {
		row := &persisted[i]
		persistedByID[row.StripeSubscriptionID] = row
		if row.SubscriptionType == enums.SubscriptionTypeAdditionalAccount &&
			row.Status.IsHealthy() && row.EmailConfigurationID != nil {
			claimed[*row.EmailConfigurationID] = true
		}
	}

	var errs error
	synced := 0
	for _, sub := range subs {
		subType := s.classify(sub)
		link := s.resolveLink(sub, subType, persistedByID[sub.ID], configs, claimed)
		if link != nil && subType == enums.SubscriptionTypeAdditionalAccount && isHealthy(sub.Status) {
			claimed[*link] = true
		}

		row := s.buildRow(sub, subType, customer, link)
		if err := s.repo.UpsertSubscription(ctx, row); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "subscription_id", sub.ID), "subscription upsert failed", err)
			errs = multierr.Append(errs, fmt.Errorf("upsert %s: %w", sub.ID, err))
			continue
		}
		synced++
	}

	representative := pickRepresentative(subs, s.classify)
	legacy := s.buildLegacyRow(representative, customer)
	if err := s.repo.UpsertLegacySubscription(ctx, legacy); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("upsert legacy row: %w", err))
	}

	if isHealthy(representative.Status) {
		if err := s.repo.ActivateEmailConfigurations(ctx, customer.UserID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("activate configurations: %w", err))
		}
	} else {
		if err := s.repo.DeactivateSecondaryEmailConfigurations(ctx, customer.UserID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deactivate secondary configurations: %w", err))
		}
	}

	if errs != nil {
		return synced, pkgerrors.Wrap(pkgerrors.CodeInternal, errs, "reconcile completed with errors")
	}
	s.logg.Info(s.logg.WithField(ctx, "synced", synced), "reconcile complete")
	return synced, nil
}

// classify decides the subscription type. Subscriptions created through
// checkout carry a metadata tag, those created by quantity updates only
// carry the addon price, so both signals are checked.
func (s *Service) classify(sub *stripe.Subscription) enums.SubscriptionType {
	if sub.Metadata[MetadataKeySubscriptionType] == enums.SubscriptionTypeAdditionalAccount.String() {
		return enums.SubscriptionTypeAdditionalAccount
	}
	if item := primaryItem(sub); item != nil && item.Price != nil && item.Price.ID == s.addonPriceID {
		return enums.SubscriptionTypeAdditionalAccount
	}
	return enums.SubscriptionTypePremier
}

// resolveLink picks the email configuration for a subscription. A persisted
// link always wins over recomputation so concurrent reconciles can never
// relink an already-synced subscription.
func (s *Service) resolveLink(
	sub *stripe.Subscription,
	subType enums.SubscriptionType,
	persisted *models.Subscription,
	configs []models.EmailConfiguration,
	claimed map[uuid.UUID]bool,
) *uuid.UUID {
	if persisted != nil && persisted.EmailConfigurationID != nil {
		return persisted.EmailConfigurationID
	}

	if raw := sub.Metadata[MetadataKeyEmailConfigurationID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			for _, cfg := range configs {
				if cfg.ID == id {
					return &id
				}
			}
		}
	}

	if subType == enums.SubscriptionTypePremier {
		for _, cfg := range configs {
			if cfg.IsPrimary {
				id := cfg.ID
				return &id
			}
		}
		return nil
	}

	// Addon subscriptions take the oldest secondary configuration not
	// already held by another active or trialing addon subscription.
	for _, cfg := range configs {
		if cfg.IsPrimary || claimed[cfg.ID] {
			continue
		}
		id := cfg.ID
		return &id
	}
	return nil
}

func (s *Service) buildRow(
	sub *stripe.Subscription,
	subType enums.SubscriptionType,
	customer *models.Customer,
	link *uuid.UUID,
) *models.Subscription {
	row := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               customer.UserID,
		CustomerID:           customer.StripeCustomerID,
		StripeSubscriptionID: sub.ID,
		SubscriptionType:     subType,
		Status:               subscriptionStatus(sub.Status),
		Quantity:             1,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		EmailConfigurationID: link,
	}
	if item := primaryItem(sub); item != nil {
		if item.Price != nil {
			priceID := item.Price.ID
			row.PriceID = &priceID
		}
		if item.Quantity > 0 {
			row.Quantity = item.Quantity
		}
		row.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		row.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	row.PaymentMethodBrand, row.PaymentMethodLast4 = cardDetails(sub)
	return row
}

func (s *Service) buildLegacyRow(sub *stripe.Subscription, customer *models.Customer) *models.LegacySubscription {
	subID := sub.ID
	legacy := &models.LegacySubscription{
		ID:                   uuid.New(),
		UserID:               customer.UserID,
		CustomerID:           customer.StripeCustomerID,
		StripeSubscriptionID: &subID,
		Status:               subscriptionStatus(sub.Status),
		AdditionalAccounts:   s.addonQuantity(sub),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if item := primaryItem(sub); item != nil {
		if item.Price != nil {
			priceID := item.Price.ID
			legacy.PriceID = &priceID
		}
		legacy.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		legacy.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	legacy.PaymentMethodBrand, legacy.PaymentMethodLast4 = cardDetails(sub)
	return legacy
}

// addonQuantity reads the additional-account line item quantity off a
// subscription, 0 when the item is absent.
func (s *Service) addonQuantity(sub *stripe.Subscription) int64 {
	if sub.Items == nil {
		return 0
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID == s.addonPriceID {
			return item.Quantity
		}
	}
	return 0
}

// pickRepresentative returns the first premier subscription, falling back to
// the first subscription of any type. Callers guarantee a non-empty slice.
func pickRepresentative(subs []*stripe.Subscription, classify func(*stripe.Subscription) enums.SubscriptionType) *stripe.Subscription {
	for _, sub := range subs {
		if classify(sub) == enums.SubscriptionTypePremier {
			return sub
		}
	}
	return subs[0]
}

func primaryItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

func subscriptionStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	if parsed, err := enums.ParseSubscriptionStatus(string(status)); err == nil {
		return parsed
	}
	return enums.SubscriptionStatus(status)
}

func isHealthy(status stripe.SubscriptionStatus) bool {
	return subscriptionStatus(status).IsHealthy()
}

// cardDetails extracts brand and last4 from the expanded default payment
// method. An unexpanded payment method carries only its id and is skipped.
func cardDetails(sub *stripe.Subscription) (*string, *string) {
	pm := sub.DefaultPaymentMethod
	if pm == nil || pm.Card == nil {
		return nil, nil
	}
	brand := string(pm.Card.Brand)
	last4 := pm.Card.Last4
	if brand == "" && last4 == "" {
		return nil, nil
	}
	return &brand, &last4
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
