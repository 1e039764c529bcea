package invoices

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type repository interface {
	FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	UpsertInvoice(ctx context.Context, invoice *models.Invoice) error
	ListInvoicesByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
	FindInvoiceForUser(ctx context.Context, userID uuid.UUID, invoiceID string) (*models.Invoice, error)
}

type providerAPI interface {
	ListPaidInvoices(ctx context.Context, stripeCustomerID string) ([]*stripe.Invoice, error)
}

// Service backfills and serves the cached invoice history. The webhook path
// keeps the cache current; Sync exists for repairing gaps.
type Service struct {
	repo     repository
	provider providerAPI
	logg     *logger.Logger
}

// NewService builds the invoice service.
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

// Sync pulls every paid invoice for the caller's customer and upserts the
// cache. Returns the number of invoices written.
func (s *Service) Sync(ctx context.Context, userID uuid.UUID) (int, error) {
	customer, err := s.repo.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup customer")
	}
	if customer == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "no billing customer for user")
	}

	ctx = s.logg.WithCustomerID(ctx, customer.StripeCustomerID)

	paid, err := s.provider.ListPaidInvoices(ctx, customer.StripeCustomerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list paid invoices")
	}

	var errs error
	synced := 0
	for _, inv := range paid {
		row, err := RowFromStripe(inv, userID, customer.StripeCustomerID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := s.repo.UpsertInvoice(ctx, row); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("upsert %s: %w", row.InvoiceID, err))
			continue
		}
		synced++
	}
	if errs != nil {
		return synced, pkgerrors.Wrap(pkgerrors.CodeInternal, errs, "invoice sync completed with errors")
	}
	s.logg.Info(s.logg.WithField(ctx, "synced", synced), "invoice sync complete")
	return synced, nil
}

// DownloadURL resolves the PDF location of an invoice owned by the user.
// Ownership failures and missing PDFs both read as not found.
func (s *Service) DownloadURL(ctx context.Context, userID uuid.UUID, invoiceID string) (string, error) {
	invoice, err := s.repo.FindInvoiceForUser(ctx, userID, invoiceID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup invoice")
	}
	if invoice == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	if invoice.InvoicePDF == nil || *invoice.InvoicePDF == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "invoice PDF is not available")
	}
	return *invoice.InvoicePDF, nil
}

// List returns the cached invoices for a user, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	rows, err := s.repo.ListInvoicesByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	return rows, nil
}
