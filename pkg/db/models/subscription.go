package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/pkg/enums"
)

// Subscription mirrors one Stripe subscription for a customer. The external
// subscription id is the upsert conflict key, so every sync is idempotent
// per subscription.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	CustomerID           string                   `gorm:"column:customer_id;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;unique"`
	SubscriptionType     enums.SubscriptionType   `gorm:"column:subscription_type;not null;default:'premier'"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null"`
	PriceID              *string                  `gorm:"column:price_id"`
	Quantity             int64                    `gorm:"column:quantity;not null;default:1"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	EmailConfigurationID *uuid.UUID               `gorm:"column:email_configuration_id;type:uuid;index"`
	PaymentMethodBrand   *string                  `gorm:"column:payment_method_brand"`
	PaymentMethodLast4   *string                  `gorm:"column:payment_method_last4"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            *time.Time               `gorm:"column:deleted_at;index"`
}
