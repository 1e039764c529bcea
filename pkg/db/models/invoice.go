package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice caches a paid billing invoice for dashboard display. Write-once
// per invoice id, upserted and never mutated by reconciliation.
type Invoice struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID            string     `gorm:"column:invoice_id;not null;unique"`
	UserID               uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	CustomerID           string     `gorm:"column:customer_id;not null;index"`
	StripeSubscriptionID *string    `gorm:"column:stripe_subscription_id"`
	Status               string     `gorm:"column:status;not null"`
	AmountPaid           int64      `gorm:"column:amount_paid;not null;default:0"`
	AmountDue            int64      `gorm:"column:amount_due;not null;default:0"`
	Currency             string     `gorm:"column:currency;not null"`
	HostedInvoiceURL     *string    `gorm:"column:hosted_invoice_url"`
	InvoicePDF           *string    `gorm:"column:invoice_pdf"`
	PeriodStart          *time.Time `gorm:"column:period_start"`
	PeriodEnd            *time.Time `gorm:"column:period_end"`
	PaidAt               *time.Time `gorm:"column:paid_at"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
