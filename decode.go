package bluevia

import (
	"fmt"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/bluevia-go/bluevia/internal/normalize"
)

// decodePayload normalizes a decoded payload and maps it onto out.
func decodePayload(payload, out any) error {
	n, err := normalize.Value(payload)
	if err != nil {
		return fmt.Errorf("bluevia: normalize payload: %w", err)
	}

	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("bluevia: new decoder: %w", err)
	}
	if err := d.Decode(n); err != nil {
		return &ValueError{Format: "payload", Err: err}
	}
	return nil
}

// jsonObject returns the JSON object in r, or nil.
func jsonObject(r *result) map[string]any {
	if r == nil {
		return nil
	}
	m, _ := r.json.(map[string]any)
	return m
}

// jsonList returns the JSON array in r. A lone object is treated as a list
// of one.
func jsonList(r *result) []any {
	if r == nil {
		return nil
	}
	switch v := r.json.(type) {
	case []any:
		return v
	case map[string]any:
		return []any{v}
	}
	return nil
}

// stringField returns m[key] as a string. Numbers are formatted.
func stringField(m map[string]any, key string) (string, bool) {
	switch v := m[key].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}
