package condtree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func TestLeaf_Match(t *testing.T) {
	record := map[string]any{
		"title":  "Dune Messiah",
		"pages":  int64(256),
		"tags":   []any{"scifi", "classic"},
		"empty":  "",
		"author": map[string]any{"name": "Frank"},
	}
	tests := []struct {
		name string
		leaf Leaf
		want bool
	}{
		{"equal across numeric types", NewLeaf("pages", schema.OpEqual, 256.0), true},
		{"not equal", NewLeaf("pages", schema.OpNotEqual, 256), false},
		{"less than", NewLeaf("pages", schema.OpLessThan, 300), true},
		{"greater than nil", NewLeaf("missing", schema.OpGreaterThan, 1), false},
		{"in", NewLeaf("title", schema.OpIn, []any{"x", "Dune Messiah"}), true},
		{"not in", NewLeaf("title", schema.OpNotIn, []any{"x"}), true},
		{"blank empty string", NewLeaf("empty", schema.OpBlank, nil), true},
		{"present", NewLeaf("title", schema.OpPresent, nil), true},
		{"missing", NewLeaf("missing", schema.OpMissing, nil), true},
		{"like is case sensitive", NewLeaf("title", schema.OpLike, "dune%"), false},
		{"like underscore", NewLeaf("title", schema.OpLike, "D_ne%"), true},
		{"ilike", NewLeaf("title", schema.OpILike, "dune%"), true},
		{"contains", NewLeaf("title", schema.OpContains, "Mess"), true},
		{"not contains", NewLeaf("title", schema.OpNotContains, "Mess"), false},
		{"starts with", NewLeaf("title", schema.OpStartsWith, "Dune"), true},
		{"ends with", NewLeaf("title", schema.OpEndsWith, "Dune"), false},
		{"longer than", NewLeaf("title", schema.OpLongerThan, 5), true},
		{"shorter than", NewLeaf("title", schema.OpShorterThan, 5), false},
		{"includes all", NewLeaf("tags", schema.OpIncludesAll, []any{"classic"}), true},
		{"includes all missing", NewLeaf("tags", schema.OpIncludesAll, []any{"classic", "poetry"}), false},
		{"regexp with flags", NewLeaf("title", schema.OpMatch, "/^dune/i"), true},
		{"through relation", NewLeaf("author:name", schema.OpEqual, "Frank"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.leaf.Match(record, Evaluation{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBranch_Match(t *testing.T) {
	record := map[string]any{"id": 1, "title": "T"}
	assert.True(t, mustMatch(t, Union(NewLeaf("id", schema.OpEqual, 2), NewLeaf("title", schema.OpEqual, "T")), record))
	assert.False(t, mustMatch(t, Intersect(NewLeaf("id", schema.OpEqual, 2), NewLeaf("title", schema.OpEqual, "T")), record))
	assert.False(t, mustMatch(t, MatchNone(), record))
}

func TestMatch_IntervalOperator(t *testing.T) {
	lib := schematest.Library()
	ev := Evaluation{Source: lib.Source("Book"), Now: time.Date(2023, 1, 4, 10, 0, 0, 0, time.UTC)}

	yesterday := NewLeaf("published_at", schema.OpYesterday, nil)
	got, err := yesterday.Match(map[string]any{"published_at": "2023-01-03T12:00:00Z"}, ev)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = yesterday.Match(map[string]any{"published_at": "2023-01-04T01:00:00Z"}, ev)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestFilter(t *testing.T) {
	records := []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}}
	got, err := Filter(NewLeaf("id", schema.OpIn, []any{1, 3}), records, Evaluation{})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": 1}, {"id": 3}}, got)

	all, err := Filter(nil, records, Evaluation{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func mustMatch(t *testing.T, tree Tree, record map[string]any) bool {
	t.Helper()
	ok, err := tree.Match(record, Evaluation{})
	require.NoError(t, err)
	return ok
}
