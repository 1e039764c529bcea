package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer maps an internal user to their Stripe customer id. Created on
// first checkout and never mutated afterwards.
type Customer struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID  `gorm:"column:user_id;type:uuid;not null;unique"`
	StripeCustomerID string     `gorm:"column:stripe_customer_id;not null;unique"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        *time.Time `gorm:"column:deleted_at;index"`
}
