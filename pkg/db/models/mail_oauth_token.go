package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/pkg/enums"
)

// MailOAuthToken is the credential row an EmailConfiguration points at.
// Token material lives with the OAuth subsystem; billing only needs the row
// so account deletion can cascade.
type MailOAuthToken struct {
	ID           uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Provider     enums.MailProvider `gorm:"column:provider;not null"`
	EmailAddress string             `gorm:"column:email_address;not null"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    *time.Time         `gorm:"column:deleted_at;index"`
}
