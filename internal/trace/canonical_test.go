package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"nested", map[string]any{"x": []any{"y", true, int64(-3)}}, `{"x":["y",true,-3]}`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"control escaped", "a\nb\x01", `"a\nb\u0001"`},
		{"quote and backslash", `"\`, `"\"\\"`},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"uint64 max", uint64(18446744073709551615), "18446744073709551615"},
		{"string slice", []string{"b", "a"}, `["b","a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FF61
	// in UTF-16 even though its UTF-8 bytes sort after.
	got, err := MarshalCanonical(map[string]any{"\uff61": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uff61\":1}", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, float32(2), struct{}{}, map[string]any{"k": nil}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%T", v)
	}
}

func TestEvent_Canonical(t *testing.T) {
	e := Event{Seq: 3, Kind: KindReject, Queue: 0xA, Codes: []string{"X"}, Detail: "vkQueueSubmit"}
	got, err := e.Canonical()
	require.NoError(t, err)
	assert.Equal(t, `{"codes":["X"],"detail":"vkQueueSubmit","kind":"reject","queue":10,"seq":3}`, string(got))
}
