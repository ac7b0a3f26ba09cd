package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"integral float", float64(42), "42"},
		{"fraction", 0.5, "0.5"},
		{"negative zero", -0.0, "0"},
		{"int", 7, "7"},
		{"int64", int64(-9), "-9"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{float64(1), "a", nil}, `[1,"a",null]`},
		{"time", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), `"2024-05-01T10:00:00.000Z"`},
		{"strings", []string{"a", "b"}, `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": float64(1),
		"alpha": map[string]any{"b": float64(1), "a": float64(2)},
		"beta":  "x",
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":"x","zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before
	// U+FF61 in UTF-16 but after it in UTF-8.
	obj := map[string]any{"｡": float64(1), "\U0001F600": float64(2)}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"｡\":1}", string(result))
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	result, err := MarshalCanonical("<a href=\"x\">&\n \\\x01</a>")
	require.NoError(t, err)
	assert.Equal(t, "\"<a href=\\\"x\\\">&\\n \\\\\\u0001</a>\"", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalErrors(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"a": []any{make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `["a"]: [0]`)
}

func TestHash(t *testing.T) {
	a, err := Hash("folio/schema/v1", map[string]any{"x": float64(1), "y": "z"})
	require.NoError(t, err)
	b, err := Hash("folio/schema/v1", map[string]any{"y": "z", "x": float64(1)})
	require.NoError(t, err)
	c, err := Hash("folio/other/v1", map[string]any{"y": "z", "x": float64(1)})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
