package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
)

// RowFromStripe maps a provider invoice into the cached row model.
func RowFromStripe(inv *stripe.Invoice, userID uuid.UUID, customerID string) (*models.Invoice, error) {
	if inv == nil || inv.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice payload is empty")
	}

	row := &models.Invoice{
		ID:         uuid.New(),
		InvoiceID:  inv.ID,
		UserID:     userID,
		CustomerID: customerID,
		Status:     string(inv.Status),
		AmountPaid: inv.AmountPaid,
		AmountDue:  inv.AmountDue,
		Currency:   string(inv.Currency),
	}
	if inv.HostedInvoiceURL != "" {
		url := inv.HostedInvoiceURL
		row.HostedInvoiceURL = &url
	}
	if inv.InvoicePDF != "" {
		pdf := inv.InvoicePDF
		row.InvoicePDF = &pdf
	}
	if subID := subscriptionID(inv); subID != "" {
		row.StripeSubscriptionID = &subID
	}
	row.PeriodStart = unixTime(inv.PeriodStart)
	row.PeriodEnd = unixTime(inv.PeriodEnd)
	if inv.StatusTransitions != nil {
		row.PaidAt = unixTime(inv.StatusTransitions.PaidAt)
	}
	return row, nil
}

func subscriptionID(inv *stripe.Invoice) string {
	if inv.Parent == nil || inv.Parent.SubscriptionDetails == nil || inv.Parent.SubscriptionDetails.Subscription == nil {
		return ""
	}
	return inv.Parent.SubscriptionDetails.Subscription.ID
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
