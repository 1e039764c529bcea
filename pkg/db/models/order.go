package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/pkg/enums"
)

// Order records a one-time checkout payment. Advisory rows, keyed by the
// checkout session id only.
type Order struct {
	ID                uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	CheckoutSessionID string              `gorm:"column:checkout_session_id;not null;unique"`
	CustomerID        *string             `gorm:"column:customer_id"`
	AmountTotal       int64               `gorm:"column:amount_total;not null;default:0"`
	Currency          string              `gorm:"column:currency;not null"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
