package reconciler

// Metadata keys written onto provider subscriptions at checkout and by the
// quantity endpoint, and read back during classification and link
// resolution.
const (
	MetadataKeySubscriptionType     = "subscription_type"
	MetadataKeyEmailConfigurationID = "email_configuration_id"
	MetadataKeyUserID               = "user_id"
	MetadataKeyPrimaryEmail         = "primary_email"
	MetadataKeyAdditionalEmails     = "additional_emails"
)
