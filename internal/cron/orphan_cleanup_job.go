package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/enums"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type orphanRepository interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	ListSubscriptionsByCustomer(ctx context.Context, stripeCustomerID string) ([]models.Subscription, error)
	ListEmailConfigurations(ctx context.Context, userID uuid.UUID) ([]models.EmailConfiguration, error)
}

type orphanProvider interface {
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// OrphanCleanupJobParams configures the orphan subscription cleanup job.
type OrphanCleanupJobParams struct {
	Logger   *logger.Logger
	Repo     orphanRepository
	Provider orphanProvider
}

// NewOrphanCleanupJob builds the job that winds down subscriptions nothing
// uses: duplicate premier subscriptions beyond the newest, and addon
// subscriptions with no mailbox left to serve. Orphans are scheduled to
// cancel at period end, never cancelled outright.
func NewOrphanCleanupJob(params OrphanCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	return &orphanCleanupJob{
		logg:     params.Logger,
		repo:     params.Repo,
		provider: params.Provider,
	}, nil
}

type orphanCleanupJob struct {
	logg     *logger.Logger
	repo     orphanRepository
	provider orphanProvider
}

func (j *orphanCleanupJob) Name() string { return "orphan-subscription-cleanup" }

func (j *orphanCleanupJob) Run(ctx context.Context) error {
	customers, err := j.repo.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}

	var errs error
	flagged := 0
	for _, customer := range customers {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		count, err := j.cleanupCustomer(ctx, customer)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("customer %s: %w", customer.StripeCustomerID, err))
			continue
		}
		flagged += count
	}

	entry := j.logg.WithFields(ctx, map[string]any{
		"customers": len(customers),
		"flagged":   flagged,
	})
	j.logg.Info(entry, "orphan cleanup finished")
	return errs
}

func (j *orphanCleanupJob) cleanupCustomer(ctx context.Context, customer models.Customer) (int, error) {
	subs, err := j.repo.ListSubscriptionsByCustomer(ctx, customer.StripeCustomerID)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	var premiers, addons []models.Subscription
	for _, sub := range subs {
		if sub.DeletedAt != nil || !sub.Status.IsHealthy() || sub.CancelAtPeriodEnd {
			continue
		}
		switch sub.SubscriptionType {
		case enums.SubscriptionTypePremier:
			premiers = append(premiers, sub)
		case enums.SubscriptionTypeAdditionalAccount:
			addons = append(addons, sub)
		}
	}

	var orphans []models.Subscription

	// Rows come back created-ascending, so everything before the last
	// premier is a duplicate.
	if len(premiers) > 1 {
		orphans = append(orphans, premiers[:len(premiers)-1]...)
	}

	if len(addons) > 0 {
		configs, err := j.repo.ListEmailConfigurations(ctx, customer.UserID)
		if err != nil {
			return 0, fmt.Errorf("list configurations: %w", err)
		}
		linked := make(map[uuid.UUID]bool)
		for _, sub := range addons {
			if sub.EmailConfigurationID != nil {
				linked[*sub.EmailConfigurationID] = true
			}
		}
		free := 0
		for _, cfg := range configs {
			if !cfg.IsPrimary && !linked[cfg.ID] {
				free++
			}
		}
		for _, sub := range addons {
			if sub.EmailConfigurationID != nil {
				continue
			}
			if free > 0 {
				free--
				continue
			}
			orphans = append(orphans, sub)
		}
	}

	var errs error
	flagged := 0
	for _, sub := range orphans {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		if _, err := j.provider.UpdateSubscription(ctx, sub.StripeSubscriptionID, params); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flag %s: %w", sub.StripeSubscriptionID, err))
			continue
		}
		entry := j.logg.WithField(ctx, "subscription_id", sub.StripeSubscriptionID)
		j.logg.Warn(entry, "orphan subscription scheduled for cancellation")
		flagged++
	}
	return flagged, errs
}
