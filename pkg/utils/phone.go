package utils

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// RegionID is the default region for numbers written without a country code.
const RegionID = "ID"

var (
	e164Regex  = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// FormatE164 parses a phone number in the given default region and returns
// it in E.164 form, e.g. 0812-3456-7890 -> +6281234567890.
func FormatE164(input, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(input), region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", phonenumbers.ErrNotANumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func IsE164Format(phone string) bool {
	return e164Regex.MatchString(phone)
}

// IsMobileNumber reports whether input is a valid mobile number, which is
// what e-wallet accounts are keyed by.
func IsMobileNumber(input, region string) bool {
	num, err := phonenumbers.Parse(strings.TrimSpace(input), region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return false
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
		return true
	default:
		return false
	}
}

func IsEmail(input string) bool {
	return emailRegex.MatchString(input)
}
