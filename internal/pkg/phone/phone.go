// Package phone canonicalizes customer phone numbers to E.164 so that every lookup,
// uniqueness key and voucher set uses one spelling per number.
package phone

import (
	"fmt"
	"strings"

	"github.com/go-redemption-api/internal/domain"
	"github.com/nyaruka/phonenumbers"
)

// Normalizer parses numbers relative to a default region (e.g. "IN").
type Normalizer struct {
	region string
}

func NewNormalizer(defaultRegion string) *Normalizer {
	return &Normalizer{region: strings.ToUpper(defaultRegion)}
}

// Canonical returns the E.164 form of raw ("+919876543210") or an ErrBadRequest-wrapped error.
func (n *Normalizer) Canonical(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("phone is required: %w", domain.ErrBadRequest)
	}
	num, err := phonenumbers.Parse(s, n.region)
	if err != nil {
		return "", fmt.Errorf("malformed phone %q: %w", raw, domain.ErrBadRequest)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone %q: %w", raw, domain.ErrBadRequest)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Digits strips the leading '+' for use in URL paths.
func Digits(canonical string) string { return strings.TrimPrefix(canonical, "+") }

// FromPath turns a URL path segment (digits, optionally '+'-prefixed) back into a number
// Canonical can parse without guessing the region.
func FromPath(seg string) string { return "+" + strings.TrimPrefix(strings.TrimSpace(seg), "+") }
