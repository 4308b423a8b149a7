package contacts

import (
	"errors"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// internationalFormat is a number already in E.164 shape: +<country><10 digits>.
var internationalFormat = regexp.MustCompile(`^\+\d{1,3}\d{10}$`)

var ErrUnparsablePhone = errors.New("unparsable phone number")

// cleanNumber keeps only digits and a leading +.
func cleanNumber(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for i := 0; i < len(phone); i++ {
		ch := phone[i]
		if ch >= '0' && ch <= '9' || ch == '+' {
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// NormalizePhone converts a raw address-book number to canonical E.164.
// Numbers already in international format pass through; anything else is
// parsed with defaultRegion supplying the country code.
func NormalizePhone(phone, defaultRegion string) (string, error) {
	cleaned := cleanNumber(phone)
	if internationalFormat.MatchString(cleaned) {
		return cleaned, nil
	}
	parsed, err := phonenumbers.Parse(cleaned, defaultRegion)
	if err != nil {
		return "", ErrUnparsablePhone
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// ValidatePhone reports whether phone is in acceptable international form.
func ValidatePhone(phone string) bool {
	return internationalFormat.MatchString(phone)
}
