package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type customerLister interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
}

type reconcileRunner interface {
	Reconcile(ctx context.Context, stripeCustomerID string) (int, error)
}

// ReconcileSweepJobParams configures the full-fleet reconcile job.
type ReconcileSweepJobParams struct {
	Logger     *logger.Logger
	Repo       customerLister
	Reconciler reconcileRunner
}

// NewReconcileSweepJob builds the job that re-reconciles every customer.
// It is the repair path for webhooks that never arrived.
func NewReconcileSweepJob(params ReconcileSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileSweepJob{
		logg:       params.Logger,
		repo:       params.Repo,
		reconciler: params.Reconciler,
	}, nil
}

type reconcileSweepJob struct {
	logg       *logger.Logger
	repo       customerLister
	reconciler reconcileRunner
}

func (j *reconcileSweepJob) Name() string { return "subscription-reconcile-sweep" }

func (j *reconcileSweepJob) Run(ctx context.Context) error {
	customers, err := j.repo.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}

	var errs error
	repaired := 0
	for _, customer := range customers {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if _, err := j.reconciler.Reconcile(ctx, customer.StripeCustomerID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("customer %s: %w", customer.StripeCustomerID, err))
			continue
		}
		repaired++
	}

	entry := j.logg.WithFields(ctx, map[string]any{
		"customers": len(customers),
		"repaired":  repaired,
	})
	j.logg.Info(entry, "reconcile sweep finished")
	return errs
}
