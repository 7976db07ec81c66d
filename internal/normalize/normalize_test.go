package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluevia-go/bluevia/internal/normalize"
	"github.com/bluevia-go/bluevia/internal/sms"
)

func TestMapStripsPrefixesAndFlagsAlias(t *testing.T) {
	in := map[string]any{
		"id":      "97286",
		"from":    "alias:5c2b9a7e",
		"to":      "tel:+34217040",
		"message": "hello",
	}
	out, err := normalize.Map(in)
	require.NoError(t, err)

	assert.Equal(t, "5c2b9a7e", out["from"])
	assert.Equal(t, "34217040", out["to"])
	assert.Equal(t, true, out["obfuscated"])
	assert.Equal(t, "97286", out["id"])
	assert.Equal(t, "hello", out["message"])
}

func TestMapPhoneSenderIsNotObfuscated(t *testing.T) {
	out, err := normalize.Map(map[string]any{"from": "tel:+34600000000"})
	require.NoError(t, err)
	assert.Equal(t, "34600000000", out["from"])
	assert.Equal(t, false, out["obfuscated"])
}

func TestMapOnlyFromGetsObfuscatedFlag(t *testing.T) {
	out, err := normalize.Map(map[string]any{"address": "alias:abc", "to": "alias:def"})
	require.NoError(t, err)
	assert.Equal(t, "abc", out["address"])
	assert.Equal(t, "def", out["to"])
	_, ok := out["obfuscated"]
	assert.False(t, ok)
}

func TestMapDoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"from":      "tel:+34600000000",
		"timestamp": "2013-05-21T10:04:33.123456+0000",
		"nested":    []any{map[string]any{"address": "tel:+1"}},
	}
	_, err := normalize.Map(in)
	require.NoError(t, err)

	assert.Equal(t, "tel:+34600000000", in["from"])
	assert.Equal(t, "2013-05-21T10:04:33.123456+0000", in["timestamp"])
	assert.Equal(t, "tel:+1", in["nested"].([]any)[0].(map[string]any)["address"])
	_, ok := in["obfuscated"]
	assert.False(t, ok)
}

func TestNormalizingTwiceFails(t *testing.T) {
	once, err := normalize.Map(map[string]any{"to": "tel:+34600000000"})
	require.NoError(t, err)

	_, err = normalize.Map(once)
	require.Error(t, err)
	assert.ErrorIs(t, err, sms.ErrUnprefixedAddress)

	var fe *normalize.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "to", fe.Key)
}

func TestMapRejectsNonStringAddress(t *testing.T) {
	_, err := normalize.Map(map[string]any{"from": 34600000000.0})
	var fe *normalize.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "from", fe.Key)
}

func TestTimestamp(t *testing.T) {
	out, err := normalize.Map(map[string]any{"timestamp": "2013-05-21T10:04:33.123456+0000"})
	require.NoError(t, err)

	want := time.Date(2013, time.May, 21, 10, 4, 33, 123456000, time.UTC)
	got, ok := out["timestamp"].(time.Time)
	require.True(t, ok, "timestamp should be a time.Time, got %T", out["timestamp"])
	assert.True(t, want.Equal(got), "got %v, want %v", got, want)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseTimestampShortFraction(t *testing.T) {
	got, err := normalize.ParseTimestamp("2013-01-02T03:04:05.5+0000")
	require.NoError(t, err)
	assert.Equal(t, 500000000, got.Nanosecond())
}

func TestTimestampMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"yesterday",
		"2013-05-21 10:04:33.123456+0000",
		"2013-05-21T10:04:33.123456+0100",
		"2013-05-21T10:04:33.123456Z",
		"2013-13-21T10:04:33.123456+0000",
		"2013-05-21T10:04:33+0000",
		"2013-05-21T10:04:33.+0000",
		"2013-05-21T10:04:33.123456789+0000",
	} {
		_, err := normalize.Map(map[string]any{"timestamp": in})
		var pe *time.ParseError
		assert.ErrorAs(t, err, &pe, in)
	}
}

func TestValueWalksLists(t *testing.T) {
	in := []any{
		map[string]any{"address": "tel:+34600000000", "status": "delivered"},
		map[string]any{"address": "alias:abc", "status": "pending"},
		"leaf",
		42.0,
	}
	out, err := normalize.Value(in)
	require.NoError(t, err)

	list := out.([]any)
	require.Len(t, list, 4)
	assert.Equal(t, "34600000000", list[0].(map[string]any)["address"])
	assert.Equal(t, "abc", list[1].(map[string]any)["address"])
	assert.Equal(t, "leaf", list[2])
	assert.Equal(t, 42.0, list[3])
}

func TestValueWalksTypedMapSlice(t *testing.T) {
	out, err := normalize.Value([]map[string]any{{"to": "tel:+1"}})
	require.NoError(t, err)
	assert.Equal(t, "1", out.([]map[string]any)[0]["to"])
}

func TestValueWalksNestedObjects(t *testing.T) {
	in := map[string]any{
		"deliveryStatus": []any{
			map[string]any{"address": "tel:+34600000000", "status": "delivered"},
		},
	}
	out, err := normalize.Value(in)
	require.NoError(t, err)

	statuses := out.(map[string]any)["deliveryStatus"].([]any)
	assert.Equal(t, "34600000000", statuses[0].(map[string]any)["address"])
}

func TestValueLeavesPassThrough(t *testing.T) {
	for _, v := range []any{nil, "x", 1.5, true} {
		out, err := normalize.Value(v)
		require.NoError(t, err)
		assert.Equal(t, v, out)
	}
}

func TestValueErrorInListPropagates(t *testing.T) {
	_, err := normalize.Value([]any{map[string]any{"timestamp": "bad"}})
	require.Error(t, err)
}
