package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/pkg/enums"
)

// EmailConfiguration represents one connected mailbox. Exactly one row per
// user carries is_primary, enforced at the write sites rather than by a
// database constraint.
type EmailConfiguration struct {
	ID           uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	EmailAddress string             `gorm:"column:email_address;not null"`
	Provider     enums.MailProvider `gorm:"column:provider;not null"`
	IsPrimary    bool               `gorm:"column:is_primary;not null;default:false"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true"`
	OAuthTokenID *uuid.UUID         `gorm:"column:oauth_token_id;type:uuid"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    *time.Time         `gorm:"column:deleted_at;index"`
}
