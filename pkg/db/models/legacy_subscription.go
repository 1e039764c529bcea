package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/pkg/enums"
)

// LegacySubscription is the single-row-per-customer projection kept for
// backward compatibility. It is always re-derived from the Subscription set
// and never accepts independent writes.
type LegacySubscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	CustomerID           string                   `gorm:"column:customer_id;not null;unique"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null;default:'not_started'"`
	PriceID              *string                  `gorm:"column:price_id"`
	AdditionalAccounts   int64                    `gorm:"column:additional_accounts;not null;default:0"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	PaymentMethodBrand   *string                  `gorm:"column:payment_method_brand"`
	PaymentMethodLast4   *string                  `gorm:"column:payment_method_last4"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            *time.Time               `gorm:"column:deleted_at;index"`
}
