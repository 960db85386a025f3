package messaging

import (
	"regexp"
	"strings"
)

// RecipientSuffix marks an individual chat address.
const RecipientSuffix = "@c.us"

var (
	nonDigitRe  = regexp.MustCompile(`\D`)
	recipientRe = regexp.MustCompile(`^[0-9]+@c\.us$`)
)

// NormalizeRecipient strips every non-digit, including any existing suffix,
// and appends RecipientSuffix. Input without digits yields the bare suffix;
// callers decide whether that is acceptable.
func NormalizeRecipient(value string) string {
	return nonDigitRe.ReplaceAllString(value, "") + RecipientSuffix
}

// IsValidRecipient reports whether value is a normalized recipient with at least one digit.
func IsValidRecipient(value string) bool {
	return recipientRe.MatchString(value)
}

// PhoneFromRecipient returns the bare digits of a normalized recipient.
func PhoneFromRecipient(recipient string) string {
	return strings.TrimSuffix(recipient, RecipientSuffix)
}
