package enums

import "fmt"

// MailProvider identifies how a mailbox is connected.
type MailProvider string

const (
	MailProviderGmail   MailProvider = "gmail"
	MailProviderOutlook MailProvider = "outlook"
	MailProviderIMAP    MailProvider = "imap"
)

var validMailProviders = []MailProvider{
	MailProviderGmail,
	MailProviderOutlook,
	MailProviderIMAP,
}

// String implements fmt.Stringer.
func (p MailProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p MailProvider) IsValid() bool {
	for _, candidate := range validMailProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseMailProvider converts raw input into a MailProvider.
func ParseMailProvider(value string) (MailProvider, error) {
	for _, candidate := range validMailProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mail provider %q", value)
}
