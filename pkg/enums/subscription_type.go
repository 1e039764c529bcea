package enums

import "fmt"

// SubscriptionType classifies what a subscription pays for.
type SubscriptionType string

const (
	SubscriptionTypePremier           SubscriptionType = "premier"
	SubscriptionTypeAdditionalAccount SubscriptionType = "additional_account"
)

var validSubscriptionTypes = []SubscriptionType{
	SubscriptionTypePremier,
	SubscriptionTypeAdditionalAccount,
}

// String implements fmt.Stringer.
func (t SubscriptionType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t SubscriptionType) IsValid() bool {
	for _, candidate := range validSubscriptionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSubscriptionType converts raw input into a SubscriptionType.
func ParseSubscriptionType(value string) (SubscriptionType, error) {
	for _, candidate := range validSubscriptionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription type %q", value)
}
