package subscriptions

import "github.com/google/uuid"

// CancelInput requests a subscription cancellation. When the email
// configuration id is set, the local linkage row is marked deleted as a
// compensating write instead of waiting for the next webhook.
type CancelInput struct {
	SubscriptionID       string     `json:"subscription_id" validate:"required"`
	EmailConfigurationID *uuid.UUID `json:"email_configuration_id,omitempty"`
}

// CancelResult reports what the cancellation did.
type CancelResult struct {
	SubscriptionID    string `json:"subscription_id"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	QuantityReleased  bool   `json:"quantity_released"`
}

// ReactivateInput clears a pending cancellation.
type ReactivateInput struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
}

// ReactivateResult reports the reactivated subscription.
type ReactivateResult struct {
	SubscriptionID    string `json:"subscription_id"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// UpdateQuantityInput sets the additional-account count on a subscription.
// AdditionalAccounts is a pointer so an explicit zero removes the line item.
type UpdateQuantityInput struct {
	SubscriptionID     string `json:"subscription_id" validate:"required"`
	AdditionalAccounts *int64 `json:"additional_accounts" validate:"required,min=0,max=25"`
}

// UpdateQuantityResult reports the resulting addon count.
type UpdateQuantityResult struct {
	SubscriptionID     string `json:"subscription_id"`
	AdditionalAccounts int64  `json:"additional_accounts"`
}

// SyncResult reports a manual reconcile run.
type SyncResult struct {
	CustomerID string `json:"customer_id"`
	Synced     int    `json:"synced"`
}
