package utils

import "strings"

// MaskEmail masks the local part of an email address.
// Example: abcd@domain.com -> a***@domain.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return "***"
	}
	if at <= 1 {
		return "***" + email[at:]
	}
	return email[:1] + "***" + email[at:]
}

// MaskAccountNumber keeps the last 4 characters of a bank account or
// e-wallet number visible.
// Example: +6281234567890 -> **********7890
func MaskAccountNumber(account string) string {
	const visible = 4
	if len(account) <= visible {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-visible) + account[len(account)-visible:]
}
