package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, `null`},
		{"integral float", 3.0, `3`},
		{"int64", int64(3), `3`},
		{"fraction", 2.5, `2.5`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"sorted keys", map[string]any{"b": 1, "a": []any{true, nil}}, `{"a":[true,null],"b":1}`},
		{"time in utc", time.Date(2023, 1, 4, 12, 0, 0, 0, time.FixedZone("x", 3600)), `"2023-01-04T11:00:00Z"`},
		{"typed slice", []string{"x", "y"}, `["x","y"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// e + combining acute accent normalizes to the precomposed form.
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_RejectsNaN(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)
}

func TestGroupKey_StableAcrossNumericTypes(t *testing.T) {
	a, err := GroupKey(map[string]any{"author:id": int64(1), "year": "2023-01-01"})
	require.NoError(t, err)
	b, err := GroupKey(map[string]any{"year": "2023-01-01", "author:id": 1.0})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := GroupKey(map[string]any{"author:id": 2, "year": "2023-01-01"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestValueKey_DomainSeparated(t *testing.T) {
	group, err := GroupKey(map[string]any{})
	require.NoError(t, err)
	value := MustValueKey(map[string]any{})
	assert.NotEqual(t, group, value)
}
