package invoices

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/api/middleware"
	"github.com/ramahallia/mailflow-backend/api/responses"
	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

// InvoiceService describes the invoice methods used by the HTTP controllers.
type InvoiceService interface {
	Sync(ctx context.Context, userID uuid.UUID) (int, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
	DownloadURL(ctx context.Context, userID uuid.UUID, invoiceID string) (string, error)
}

type invoiceResponse struct {
	InvoiceID            string     `json:"invoice_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	Status               string     `json:"status"`
	AmountPaid           int64      `json:"amount_paid"`
	AmountDue            int64      `json:"amount_due"`
	Currency             string     `json:"currency"`
	HostedInvoiceURL     *string    `json:"hosted_invoice_url,omitempty"`
	InvoicePDF           *string    `json:"invoice_pdf,omitempty"`
	PeriodStart          *time.Time `json:"period_start,omitempty"`
	PeriodEnd            *time.Time `json:"period_end,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
}

type invoiceListResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}

// Sync backfills the caller's paid invoices from the billing provider.
func Sync(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		synced, err := svc.Sync(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"synced": synced})
	}
}

// Download redirects the caller to the PDF of one of their invoices.
func Download(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoiceID := chi.URLParam(r, "invoiceId")
		if invoiceID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required"))
			return
		}

		url, err := svc.DownloadURL(r.Context(), userID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// List returns the caller's cached invoices, newest first.
func List(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := invoiceListResponse{Invoices: make([]invoiceResponse, 0, len(rows))}
		for _, row := range rows {
			resp.Invoices = append(resp.Invoices, invoiceResponse{
				InvoiceID:            row.InvoiceID,
				StripeSubscriptionID: row.StripeSubscriptionID,
				Status:               row.Status,
				AmountPaid:           row.AmountPaid,
				AmountDue:            row.AmountDue,
				Currency:             row.Currency,
				HostedInvoiceURL:     row.HostedInvoiceURL,
				InvoicePDF:           row.InvoicePDF,
				PeriodStart:          row.PeriodStart,
				PeriodEnd:            row.PeriodEnd,
				PaidAt:               row.PaidAt,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
