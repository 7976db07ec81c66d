// Package sms holds the address conventions shared by outbound requests and
// inbound notifications: transport prefixes, phone number normalization and
// country allow-lists.
package sms

import (
	"errors"
	"fmt"
	"strings"
)

// Transport prefixes used by the API in address fields.
const (
	PrefixPhone = "tel:+"
	PrefixAlias = "alias:"
)

// ErrUnprefixedAddress is returned when an address carries neither transport
// prefix. Stripping such a value would corrupt it, so it is rejected.
var ErrUnprefixedAddress = errors.New("address has no tel:+ or alias: prefix")

// FormatAddress adds the transport prefix to a destination. All-digit values
// are phone numbers; anything else is an obfuscated alias.
func FormatAddress(dest string) string {
	if IsPhoneNumber(dest) {
		return PrefixPhone + dest
	}
	return PrefixAlias + dest
}

// StripAddress removes the transport prefix from an address and reports
// whether it was an alias.
func StripAddress(addr string) (string, bool, error) {
	switch {
	case strings.HasPrefix(addr, PrefixAlias):
		return addr[len(PrefixAlias):], true, nil
	case strings.HasPrefix(addr, PrefixPhone):
		return addr[len(PrefixPhone):], false, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnprefixedAddress, addr)
	}
}

// IsPhoneNumber reports whether dest is a non-empty string of ASCII digits.
func IsPhoneNumber(dest string) bool {
	if dest == "" {
		return false
	}
	for i := 0; i < len(dest); i++ {
		if dest[i] < '0' || dest[i] > '9' {
			return false
		}
	}
	return true
}
