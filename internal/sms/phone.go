package sms

import (
	"errors"
	"slices"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhoneNumber is returned when a phone number cannot be parsed or validated.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// parseInternational parses a number written with exactly one leading '+'
// followed by ASCII digits and the usual separators. No default region is
// assumed.
func parseInternational(input string) (*phonenumbers.PhoneNumber, error) {
	rest, ok := strings.CutPrefix(input, "+")
	if !ok || strings.IndexFunc(rest, func(r rune) bool { return !isDialRune(r) }) >= 0 {
		return nil, ErrInvalidPhoneNumber
	}
	num, err := phonenumbers.Parse(input, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return nil, ErrInvalidPhoneNumber
	}
	return num, nil
}

func isDialRune(r rune) bool {
	return (r >= '0' && r <= '9') || strings.ContainsRune(" -().", r)
}

// NormalizePhone validates an international number and returns it in E.164 form.
func NormalizePhone(input string) (string, error) {
	num, err := parseInternational(input)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ParseDestination turns user input into the destination form the API
// expects: international phone numbers without the leading '+', or an alias
// passed through untouched. Input starting with '+' must be a valid number.
func ParseDestination(input string) (string, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return "", errors.New("destination is required")
	case !strings.HasPrefix(input, "+"):
		return input, nil
	}
	e164, err := NormalizePhone(input)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(e164, "+"), nil
}

// PhoneCountry returns the ISO 3166-1 alpha-2 region of a number written in
// E.164 or as the bare digits BlueVia uses, or "" if it does not parse.
func PhoneCountry(phone string) string {
	if IsPhoneNumber(phone) {
		phone = "+" + phone
	}
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}

// IsAllowedCountry reports whether phone belongs to one of the allowed
// regions. Codes compare case-insensitively and an empty list allows all.
func IsAllowedCountry(phone string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	region := PhoneCountry(phone)
	return region != "" && slices.ContainsFunc(allowed, func(code string) bool {
		return strings.EqualFold(code, region)
	})
}
