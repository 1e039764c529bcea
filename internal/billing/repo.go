package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
)

// Repository handles billing persistence. Subscription, legacy and invoice
// writes are upserts keyed on the natural external identifiers so repeated
// application is commutative.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error)
	FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	SoftDeleteCustomer(ctx context.Context, userID uuid.UUID) error

	UpsertSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	ListSubscriptionsByCustomer(ctx context.Context, stripeCustomerID string) ([]models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	FindSubscriptionByEmailConfiguration(ctx context.Context, configID uuid.UUID) (*models.Subscription, error)
	MarkSubscriptionCanceled(ctx context.Context, stripeSubscriptionID string, deleted bool) error
	MarkSubscriptionsDeletedByUser(ctx context.Context, userID uuid.UUID) error

	UpsertLegacySubscription(ctx context.Context, legacy *models.LegacySubscription) error
	FindLegacySubscriptionByCustomer(ctx context.Context, stripeCustomerID string) (*models.LegacySubscription, error)
	MarkLegacySubscriptionCanceled(ctx context.Context, stripeCustomerID string) error

	ListEmailConfigurations(ctx context.Context, userID uuid.UUID) ([]models.EmailConfiguration, error)
	FindEmailConfiguration(ctx context.Context, id uuid.UUID) (*models.EmailConfiguration, error)
	FindPrimaryEmailConfiguration(ctx context.Context, userID uuid.UUID) (*models.EmailConfiguration, error)
	SetEmailConfigurationActive(ctx context.Context, id uuid.UUID, active bool) error
	ActivateEmailConfigurations(ctx context.Context, userID uuid.UUID) error
	DeactivateSecondaryEmailConfigurations(ctx context.Context, userID uuid.UUID) error
	DeleteEmailConfiguration(ctx context.Context, id uuid.UUID) error
	DeleteEmailConfigurationsByUser(ctx context.Context, userID uuid.UUID) error

	DeleteMailOAuthToken(ctx context.Context, id uuid.UUID) error
	DeleteMailOAuthTokensByUser(ctx context.Context, userID uuid.UUID) error

	UpsertInvoice(ctx context.Context, invoice *models.Invoice) error
	ListInvoicesByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
	FindInvoiceForUser(ctx context.Context, userID uuid.UUID, invoiceID string) (*models.Invoice, error)

	CreateOrder(ctx context.Context, order *models.Order) error

	SoftDeleteUser(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ? AND deleted_at IS NULL", stripeCustomerID).
		First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindCustomerByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := r.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("created_at ASC").
		Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repository) SoftDeleteCustomer(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Update("deleted_at", time.Now().UTC()).Error
}

// subscriptionSyncColumns are the fields refreshed on every sync. deleted_at
// is deliberately excluded so compensating deletions survive a resync.
var subscriptionSyncColumns = []string{
	"user_id",
	"customer_id",
	"subscription_type",
	"status",
	"price_id",
	"quantity",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"email_configuration_id",
	"payment_method_brand",
	"payment_method_last4",
	"updated_at",
}

func (r *repository) UpsertSubscription(ctx context.Context, subscription *models.Subscription) error {
	subscription.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns(subscriptionSyncColumns),
		}).
		Create(subscription).Error
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListSubscriptionsByCustomer(ctx context.Context, stripeCustomerID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", stripeCustomerID).
		Order("created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Order("created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindSubscriptionByEmailConfiguration(ctx context.Context, configID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("email_configuration_id = ? AND deleted_at IS NULL", configID).
		Order("created_at ASC").
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) MarkSubscriptionCanceled(ctx context.Context, stripeSubscriptionID string, deleted bool) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":     "canceled",
		"updated_at": now,
	}
	if deleted {
		updates["deleted_at"] = now
	}
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(updates).Error
}

func (r *repository) MarkSubscriptionsDeletedByUser(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Updates(map[string]any{
			"status":     "canceled",
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

var legacySyncColumns = []string{
	"user_id",
	"stripe_subscription_id",
	"status",
	"price_id",
	"additional_accounts",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"payment_method_brand",
	"payment_method_last4",
	"updated_at",
}

func (r *repository) UpsertLegacySubscription(ctx context.Context, legacy *models.LegacySubscription) error {
	legacy.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}},
			DoUpdates: clause.AssignmentColumns(legacySyncColumns),
		}).
		Create(legacy).Error
}

func (r *repository) FindLegacySubscriptionByCustomer(ctx context.Context, stripeCustomerID string) (*models.LegacySubscription, error) {
	var legacy models.LegacySubscription
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", stripeCustomerID).
		First(&legacy).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &legacy, nil
}

func (r *repository) MarkLegacySubscriptionCanceled(ctx context.Context, stripeCustomerID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.LegacySubscription{}).
		Where("customer_id = ?", stripeCustomerID).
		Updates(map[string]any{
			"status":     "canceled",
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

func (r *repository) ListEmailConfigurations(ctx context.Context, userID uuid.UUID) ([]models.EmailConfiguration, error) {
	var configs []models.EmailConfiguration
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Order("created_at ASC").
		Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repository) FindEmailConfiguration(ctx context.Context, id uuid.UUID) (*models.EmailConfiguration, error) {
	var cfg models.EmailConfiguration
	if err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&cfg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) FindPrimaryEmailConfiguration(ctx context.Context, userID uuid.UUID) (*models.EmailConfiguration, error) {
	var cfg models.EmailConfiguration
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_primary AND deleted_at IS NULL", userID).
		First(&cfg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) SetEmailConfigurationActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) ActivateEmailConfigurations(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("user_id = ? AND NOT is_active AND deleted_at IS NULL", userID).
		Updates(map[string]any{
			"is_active":  true,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) DeactivateSecondaryEmailConfigurations(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("user_id = ? AND NOT is_primary AND is_active AND deleted_at IS NULL", userID).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) DeleteEmailConfiguration(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"is_active":  false,
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

func (r *repository) DeleteEmailConfigurationsByUser(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Updates(map[string]any{
			"is_active":  false,
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

func (r *repository) DeleteMailOAuthToken(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.MailOAuthToken{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

func (r *repository) DeleteMailOAuthTokensByUser(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.MailOAuthToken{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Updates(map[string]any{
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

var invoiceSyncColumns = []string{
	"status",
	"amount_paid",
	"amount_due",
	"hosted_invoice_url",
	"invoice_pdf",
	"paid_at",
	"updated_at",
}

func (r *repository) UpsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.AssignmentColumns(invoiceSyncColumns),
		}).
		Create(invoice).Error
}

func (r *repository) FindInvoiceForUser(ctx context.Context, userID uuid.UUID, invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND invoice_id = ?", userID, invoiceID).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListInvoicesByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// CreateOrder inserts an advisory order row. Duplicate checkout sessions are
// ignored rather than treated as errors.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checkout_session_id"}},
			DoNothing: true,
		}).
		Create(order).Error
}

func (r *repository) SoftDeleteUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND deleted_at IS NULL", userID).
		Update("deleted_at", time.Now().UTC()).Error
}
