// Package normalize rewrites decoded API payloads into their canonical form:
// address fields lose their transport prefix, the sender gains an
// "obfuscated" flag and timestamps become time.Time values.
//
// The transform is pure. Inputs are never modified; every map and slice on
// the path to a rewritten value is copied.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/bluevia-go/bluevia/internal/sms"
)

// TimestampLayout is the fixed timestamp format used by the API. The offset
// is always the literal +0000.
const TimestampLayout = "2006-01-02T15:04:05.999999+0000"

// ObfuscatedKey is the field added next to "from".
const ObfuscatedKey = "obfuscated"

// FieldError reports a field that could not be normalized.
type FieldError struct {
	Key   string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("normalize: field %q (%v): %v", e.Key, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Value normalizes a decoded JSON tree. Maps and slices are walked
// recursively; other leaves are returned unchanged.
func Value(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return Map(t)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			n, err := Map(m)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := Value(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

// Map normalizes a single object and returns a new map.
func Map(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m)+1)
	var (
		hasFrom    bool
		obfuscated bool
	)
	for k, v := range m {
		switch k {
		case "from", "to", "address":
			s, ok := v.(string)
			if !ok {
				return nil, &FieldError{Key: k, Value: v, Err: fmt.Errorf("expected string, got %T", v)}
			}
			addr, alias, err := sms.StripAddress(s)
			if err != nil {
				return nil, &FieldError{Key: k, Value: v, Err: err}
			}
			out[k] = addr
			if k == "from" {
				hasFrom, obfuscated = true, alias
			}
		case "timestamp":
			s, ok := v.(string)
			if !ok {
				return nil, &FieldError{Key: k, Value: v, Err: fmt.Errorf("expected string, got %T", v)}
			}
			ts, err := ParseTimestamp(s)
			if err != nil {
				return nil, &FieldError{Key: k, Value: v, Err: err}
			}
			out[k] = ts
		default:
			n, err := Value(v)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
	}
	if hasFrom {
		out[ObfuscatedKey] = obfuscated
	}
	return out, nil
}

// ParseTimestamp parses an API timestamp such as
// "2013-05-21T10:04:33.123456+0000" into a UTC time.
// The fraction is mandatory and has 1 to 6 digits.
func ParseTimestamp(s string) (time.Time, error) {
	if frac, ok := fraction(s); ok && (len(frac) < 1 || len(frac) > 6) {
		return time.Time{}, &time.ParseError{
			Layout:     TimestampLayout,
			Value:      s,
			LayoutElem: ".999999",
			ValueElem:  "." + frac,
			Message:    ": fractional seconds must have 1 to 6 digits",
		}
	}
	ts, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// fraction returns the digits between the last '.' and the "+0000" suffix.
// ok is false when s does not end in the offset, which time.Parse rejects
// on its own. A missing '.' yields an empty fraction.
func fraction(s string) (digits string, ok bool) {
	rest, ok := strings.CutSuffix(s, "+0000")
	if !ok {
		return "", false
	}
	dot := strings.LastIndexByte(rest, '.')
	if dot < 0 {
		return "", true
	}
	return rest[dot+1:], true
}
