package cron

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	"github.com/ramahallia/mailflow-backend/pkg/enums"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type fakeOrphanRepo struct {
	customers []models.Customer
	subs      []models.Subscription
	configs   []models.EmailConfiguration
}

func (f *fakeOrphanRepo) ListCustomers(context.Context) ([]models.Customer, error) {
	return f.customers, nil
}

func (f *fakeOrphanRepo) ListSubscriptionsByCustomer(context.Context, string) ([]models.Subscription, error) {
	return f.subs, nil
}

func (f *fakeOrphanRepo) ListEmailConfigurations(context.Context, uuid.UUID) ([]models.EmailConfiguration, error) {
	return f.configs, nil
}

type fakeOrphanProvider struct {
	flagged []string
}

func (f *fakeOrphanProvider) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.flagged = append(f.flagged, id)
	return &stripe.Subscription{ID: id}, nil
}

func newOrphanJob(t *testing.T, repo *fakeOrphanRepo, provider *fakeOrphanProvider) Job {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	job, err := NewOrphanCleanupJob(OrphanCleanupJobParams{Logger: logg, Repo: repo, Provider: provider})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	return job
}

func healthySub(id string, subType enums.SubscriptionType, link *uuid.UUID) models.Subscription {
	return models.Subscription{
		StripeSubscriptionID: id,
		SubscriptionType:     subType,
		Status:               enums.SubscriptionStatusActive,
		EmailConfigurationID: link,
	}
}

func TestOrphanCleanupFlagsDuplicatePremiers(t *testing.T) {
	repo := &fakeOrphanRepo{
		customers: []models.Customer{{UserID: uuid.New(), StripeCustomerID: "cus_1"}},
		subs: []models.Subscription{
			healthySub("sub_old", enums.SubscriptionTypePremier, nil),
			healthySub("sub_new", enums.SubscriptionTypePremier, nil),
		},
	}
	provider := &fakeOrphanProvider{}
	job := newOrphanJob(t, repo, provider)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.flagged) != 1 || provider.flagged[0] != "sub_old" {
		t.Fatalf("expected only the older premier flagged, got %v", provider.flagged)
	}
}

func TestOrphanCleanupFlagsAddonWithoutMailbox(t *testing.T) {
	configID := uuid.New()
	repo := &fakeOrphanRepo{
		customers: []models.Customer{{UserID: uuid.New(), StripeCustomerID: "cus_1"}},
		subs: []models.Subscription{
			healthySub("sub_linked", enums.SubscriptionTypeAdditionalAccount, &configID),
			healthySub("sub_orphan", enums.SubscriptionTypeAdditionalAccount, nil),
		},
		configs: []models.EmailConfiguration{
			{ID: uuid.New(), IsPrimary: true},
			{ID: configID},
		},
	}
	provider := &fakeOrphanProvider{}
	job := newOrphanJob(t, repo, provider)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.flagged) != 1 || provider.flagged[0] != "sub_orphan" {
		t.Fatalf("expected the unlinkable addon flagged, got %v", provider.flagged)
	}
}

func TestOrphanCleanupSparesAddonWithFreeMailbox(t *testing.T) {
	repo := &fakeOrphanRepo{
		customers: []models.Customer{{UserID: uuid.New(), StripeCustomerID: "cus_1"}},
		subs: []models.Subscription{
			healthySub("sub_pending", enums.SubscriptionTypeAdditionalAccount, nil),
		},
		configs: []models.EmailConfiguration{
			{ID: uuid.New(), IsPrimary: true},
			{ID: uuid.New()},
		},
	}
	provider := &fakeOrphanProvider{}
	job := newOrphanJob(t, repo, provider)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.flagged) != 0 {
		t.Fatalf("addon with an assignable mailbox must be spared, got %v", provider.flagged)
	}
}

func TestOrphanCleanupIgnoresUnhealthyAndFlaggedSubs(t *testing.T) {
	canceled := healthySub("sub_canceled", enums.SubscriptionTypePremier, nil)
	canceled.Status = enums.SubscriptionStatusCanceled
	pending := healthySub("sub_pending_cancel", enums.SubscriptionTypePremier, nil)
	pending.CancelAtPeriodEnd = true
	repo := &fakeOrphanRepo{
		customers: []models.Customer{{UserID: uuid.New(), StripeCustomerID: "cus_1"}},
		subs: []models.Subscription{
			canceled,
			pending,
			healthySub("sub_live", enums.SubscriptionTypePremier, nil),
		},
	}
	provider := &fakeOrphanProvider{}
	job := newOrphanJob(t, repo, provider)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.flagged) != 0 {
		t.Fatalf("no live duplicates exist, got %v", provider.flagged)
	}
}
