package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
	"github.com/roach88/dstoolkit/internal/testutil"
)

func books(t *testing.T) *Collection {
	t.Helper()
	c, err := NewDatasource(testutil.Library(t)).Decorated("Book")
	require.NoError(t, err)
	return c
}

func search(t *testing.T, c *Collection, text string, extended bool) []any {
	t.Helper()
	f := filter.PaginatedFilter{}.WithSearch(text, extended).WithSort(filter.NewSort(filter.Clause{Field: "id", Ascending: true}))
	records, err := c.List(context.Background(), nil, f, projection.New("id", "title"))
	require.NoError(t, err)
	return testutil.Titles(records)
}

func TestSearch_Columns(t *testing.T) {
	c := books(t)
	assert.True(t, c.Schema().Searchable)
	assert.Equal(t, []any{"Earthsea"}, search(t, c, "Ear", false))
	assert.Equal(t, []any{"Dune", "Earthsea", "The Dispossessed"}, search(t, c, "1", false))
	assert.Len(t, search(t, c, "   ", false), 4)
}

func TestSearch_Extended(t *testing.T) {
	c := books(t)
	assert.Empty(t, search(t, c, "Ursula", false))
	assert.Equal(t, []any{"Earthsea", "The Dispossessed"}, search(t, c, "Ursula", true))
}

func TestReplaceSearch(t *testing.T) {
	c := books(t)
	c.ReplaceSearch(func(_ context.Context, s string, _ bool, cc *decorators.CustomizationContext) (condtree.Tree, error) {
		assert.Equal(t, "Book", cc.Collection.Name())
		return condtree.NewLeaf("title", schema.OpEqual, s), nil
	})
	assert.Equal(t, []any{"Dune"}, search(t, c, "Dune", false))
	assert.Empty(t, search(t, c, "Du", false))
}

func TestDisableSearch(t *testing.T) {
	c := books(t)
	c.DisableSearch()
	assert.False(t, c.Schema().Searchable)
	assert.Len(t, search(t, c, "Dune", false), 4)
}

func TestCondition(t *testing.T) {
	status := schematest.Column(schema.TypeEnum, schema.OpEqual)
	status.EnumValues = []string{"Draft", "Published"}
	assert.Equal(t, condtree.NewLeaf("status", schema.OpEqual, "Published"), Condition("status", status, " published "))
	assert.Nil(t, Condition("status", status, "archived"))

	number := schematest.Column(schema.TypeNumber, schema.OpEqual)
	assert.Equal(t, condtree.NewLeaf("n", schema.OpEqual, int64(42)), Condition("n", number, "42"))
	assert.Nil(t, Condition("n", number, "4.2"))

	id := schematest.Column(schema.TypeUUID, schema.OpEqual)
	assert.NotNil(t, Condition("id", id, "018f2a6e-8d1b-7c3a-9f00-0123456789ab"))
	assert.Nil(t, Condition("id", id, "not-a-uuid"))

	assert.Nil(t, Condition("at", schematest.Column(schema.TypeDate, schema.OpEqual), "2023"))
	assert.Nil(t, Condition("s", schematest.Column(schema.TypeString, schema.OpIn), "x"))
}
