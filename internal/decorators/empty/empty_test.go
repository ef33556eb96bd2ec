package empty

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/memory"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func leaf(field string, op schema.Operator, v any) condtree.Tree { return condtree.NewLeaf(field, op, v) }

func TestReturnsEmptySet(t *testing.T) {
	tests := []struct {
		name string
		tree condtree.Tree
		want bool
	}{
		{"nil tree", nil, false},
		{"empty in", leaf("id", schema.OpIn, []any{}), true},
		{"nil in", leaf("id", schema.OpIn, nil), true},
		{"in with values", leaf("id", schema.OpIn, []any{1}), false},
		{"match none", condtree.MatchNone(), true},
		{"or of empties", condtree.Branch{Aggregator: condtree.Or, Conditions: []condtree.Tree{
			leaf("id", schema.OpIn, []any{}), leaf("x", schema.OpIn, []any{}),
		}}, true},
		{"or with one live branch", condtree.Union(leaf("id", schema.OpIn, []any{}), leaf("x", schema.OpEqual, 1)), false},
		{"and with empty child", condtree.Intersect(leaf("x", schema.OpEqual, 1), leaf("id", schema.OpIn, []any{})), true},
		{"contradictory equals", condtree.Intersect(leaf("id", schema.OpEqual, 1), leaf("id", schema.OpEqual, 2)), true},
		{"equal outside in", condtree.Intersect(leaf("id", schema.OpIn, []any{1, 2}), leaf("id", schema.OpEqual, 3)), true},
		{"equal inside in", condtree.Intersect(leaf("id", schema.OpIn, []any{1, 2}), leaf("id", schema.OpEqual, 2.0)), false},
		{"different fields", condtree.Intersect(leaf("id", schema.OpEqual, 1), leaf("x", schema.OpEqual, 2)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReturnsEmptySet(tt.tree))
		})
	}
}

func TestCollection_ShortCircuits(t *testing.T) {
	ctx := context.Background()
	base, err := memory.FromSchemas(schematest.Library())
	require.NoError(t, err)
	raw, _ := base.Collection("Book")
	raw.Seed(collection.Record{"id": 1, "title": "Dune"})

	books, err := NewDatasource(base).Decorated("Book")
	require.NoError(t, err)

	// The memory collection rejects search, so reaching it would fail.
	f := filter.Filter{ConditionTree: leaf("id", schema.OpIn, []any{}), Search: "x"}
	got, err := books.List(ctx, nil, f.Paginated(), projection.New("id"))
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, books.Delete(ctx, nil, f))
	assert.Equal(t, 1, raw.Len())

	got, err = books.List(ctx, nil, filter.PaginatedFilter{}, projection.New("id"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
