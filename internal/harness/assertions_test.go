package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalEqual(t *testing.T) {
	assert.True(t, canonicalEqual(int64(3), 3))
	assert.True(t, canonicalEqual(3.0, 3))
	assert.True(t, canonicalEqual(time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC), "1965-08-01T00:00:00Z"))
	assert.True(t, canonicalEqual(
		[]map[string]any{{"b": 1, "a": "x"}},
		[]map[string]any{{"a": "x", "b": int64(1)}},
	))
	assert.False(t, canonicalEqual("3", 3))
	assert.False(t, canonicalEqual(nil, ""))
}

func TestCheckExpect(t *testing.T) {
	count := 1
	tests := []struct {
		name   string
		expect *Expect
		ev     TraceEvent
		err    error
		want   []string
	}{
		{
			name: "no expect succeeds",
			ev:   TraceEvent{Records: []map[string]any{}},
		},
		{
			name:   "expected error matches",
			expect: &Expect{Error: "VALIDATION"},
			ev:     TraceEvent{Error: "VALIDATION"},
			err:    assert.AnError,
		},
		{
			name:   "expected error missing",
			expect: &Expect{Error: "VALIDATION"},
			ev:     TraceEvent{},
			want:   []string{"expected error VALIDATION, got success"},
		},
		{
			name:   "count on results",
			expect: &Expect{Count: &count},
			ev:     TraceEvent{Results: []map[string]any{{"value": 1}, {"value": 2}}},
			want:   []string{"count: expected 1, got 2"},
		},
		{
			name:   "records match",
			expect: &Expect{Records: []map[string]any{{"id": 1}}},
			ev:     TraceEvent{Records: []map[string]any{{"id": int64(1)}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkExpect(tt.expect, tt.ev, tt.err))
		})
	}
}

func TestCheckExpect_UnexpectedError(t *testing.T) {
	problems := checkExpect(nil, TraceEvent{Error: "INTERNAL"}, assert.AnError)
	assert.Len(t, problems, 1)
	assert.Contains(t, problems[0], "unexpected error")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRecordCount,
		Expected: "3 Novel records",
		Actual:   "2 records",
		Trace: []TraceEvent{
			{Seq: 1, Op: OpList, Collection: "Novel"},
			{Seq: 2, Op: OpCreate, Collection: "Novel", Error: "VALIDATION"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: record_count")
	assert.Contains(t, msg, "Expected: 3 Novel records")
	assert.Contains(t, msg, "[1] list Novel: ok")
	assert.Contains(t, msg, "[2] create Novel: VALIDATION")
}

func TestAssertionTree(t *testing.T) {
	tree, err := assertionTree(Assertion{})
	assert.NoError(t, err)
	assert.Nil(t, tree)

	tree, err = assertionTree(Assertion{Where: map[string]any{"b": 2, "a": 1}})
	assert.NoError(t, err)
	assert.NotNil(t, tree)
}

func TestFormatWhere(t *testing.T) {
	assert.Equal(t, "any", formatWhere(nil))
	assert.Equal(t, `a=1, b="x"`, formatWhere(map[string]any{"b": "x", "a": 1}))
}
