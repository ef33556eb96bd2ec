package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/memory"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func books(t *testing.T) *Collection {
	t.Helper()
	base, err := memory.FromSchemas(schematest.Library())
	require.NoError(t, err)
	raw, _ := base.Collection("Book")
	raw.Seed(
		collection.Record{"id": 1, "title": "Dune"},
		collection.Record{"id": 2, "title": "Emma"},
		collection.Record{"id": 3, "title": "Ulysses"},
	)
	c, err := NewDatasource(base).Decorated("Book")
	require.NoError(t, err)
	return c
}

func TestAddSegment(t *testing.T) {
	c := books(t)
	require.NoError(t, c.AddSegment("classics", Static(condtree.NewLeaf("id", schema.OpIn, []any{2, 3}))))
	assert.Equal(t, []string{"classics"}, c.Schema().Segments)

	err := c.AddSegment("classics", Static(nil))
	assert.True(t, errs.IsConfigurationError(err))
}

func TestSegmentIsIntersected(t *testing.T) {
	ctx := context.Background()
	c := books(t)
	var seen *collection.Caller
	require.NoError(t, c.AddSegment("classics", func(_ context.Context, cc *decorators.CustomizationContext) (condtree.Tree, error) {
		seen = cc.Caller
		return condtree.NewLeaf("id", schema.OpIn, []any{2, 3}), nil
	}))

	caller := &collection.Caller{ID: 7}
	f := filter.Filter{ConditionTree: condtree.NewLeaf("title", schema.OpEqual, "Emma"), Segment: "classics"}
	got, err := c.List(ctx, caller, f.Paginated(), projection.New("id"))
	require.NoError(t, err)
	assert.Equal(t, []collection.Record{{"id": 2}}, got)
	assert.Same(t, caller, seen)
}

func TestSegmentTreeIsValidated(t *testing.T) {
	c := books(t)
	require.NoError(t, c.AddSegment("bad", Static(condtree.NewLeaf("title", schema.OpStartsWith, "D"))))
	_, err := c.List(context.Background(), nil, filter.Filter{Segment: "bad"}.Paginated(), projection.New("id"))
	assert.True(t, errs.IsFilterError(err))
}
