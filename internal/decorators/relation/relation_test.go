package relation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/testutil"
)

func library(t *testing.T) *decorators.Datasource[*Collection] {
	t.Helper()
	ds := NewDatasource(testutil.Library(t))
	books, err := ds.Decorated("Book")
	require.NoError(t, err)
	require.NoError(t, books.AddRelation("writer", schema.ManyToOne{ForeignCollection: "Person", ForeignKey: "author_id"}))
	people, err := ds.Decorated("Person")
	require.NoError(t, err)
	require.NoError(t, people.AddRelation("badge", schema.OneToOne{ForeignCollection: "Card", OriginKey: "owner_id"}))
	return ds
}

func list(t *testing.T, ds *decorators.Datasource[*Collection], name string, f filter.PaginatedFilter, p projection.Projection) []collection.Record {
	t.Helper()
	c, err := ds.Decorated(name)
	require.NoError(t, err)
	records, err := c.List(context.Background(), nil, f, p)
	require.NoError(t, err)
	return records
}

func TestAddRelationSchema(t *testing.T) {
	books, err := library(t).Decorated("Book")
	require.NoError(t, err)
	assert.Equal(t, schema.ManyToOne{ForeignCollection: "Person", ForeignKey: "author_id", ForeignKeyTarget: "id"}, books.Schema().Fields["writer"])
}

func TestAddRelationErrors(t *testing.T) {
	books, err := library(t).Decorated("Book")
	require.NoError(t, err)

	cases := map[string]schema.Field{
		"author":   schema.ManyToOne{ForeignCollection: "Person", ForeignKey: "author_id"},
		"ghost":    schema.ManyToOne{ForeignCollection: "Ghost", ForeignKey: "author_id"},
		"missing":  schema.ManyToOne{ForeignCollection: "Person", ForeignKey: "nope"},
		"mismatch": schema.ManyToOne{ForeignCollection: "Person", ForeignKey: "title"},
		"noIn":     schema.OneToOne{ForeignCollection: "Card", OriginKey: "number"},
	}
	for name, rel := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errs.IsConfigurationError(books.AddRelation(name, rel)))
		})
	}
}

func TestListManyToOne(t *testing.T) {
	records := list(t, library(t), "Book", filter.PaginatedFilter{}, projection.New("title", "writer:name"))
	require.Len(t, records, 4)
	assert.Equal(t, collection.Record{"title": "Dune", "writer": map[string]any{"name": "Frank"}}, records[0])
	assert.Equal(t, collection.Record{"title": "Earthsea", "writer": map[string]any{"name": "Ursula"}}, records[1])
	assert.Nil(t, records[3]["writer"])
	assert.NotContains(t, records[0], "author_id")
}

func TestListOneToOne(t *testing.T) {
	records := list(t, library(t), "Person", filter.PaginatedFilter{}, projection.New("name", "badge:number"))
	require.Len(t, records, 2)
	assert.Equal(t, map[string]any{"number": "A-1"}, records[0]["badge"])
	assert.Nil(t, records[1]["badge"])
}

func TestEmulatedRelationInsideNativeRelation(t *testing.T) {
	records := list(t, library(t), "Book", filter.PaginatedFilter{}, projection.New("title", "author:badge:number"))
	require.Len(t, records, 4)
	assert.Equal(t, map[string]any{"badge": nil}, records[0]["author"])
	assert.Equal(t, map[string]any{"badge": map[string]any{"number": "A-1"}}, records[1]["author"])
	assert.Nil(t, records[3]["author"])
}

func TestFilterAndSortThroughRelation(t *testing.T) {
	ds := library(t)
	f := filter.PaginatedFilter{}.WithConditionTree(condtree.NewLeaf("writer:name", schema.OpEqual, "Ursula"))
	assert.Equal(t, []any{"Earthsea", "The Dispossessed"}, testutil.Titles(list(t, ds, "Book", f, projection.New("title"))))

	none := filter.PaginatedFilter{}.WithConditionTree(condtree.NewLeaf("writer:name", schema.OpEqual, "Nobody"))
	assert.Empty(t, list(t, ds, "Book", none, projection.New("title")))

	sorted := filter.PaginatedFilter{}.WithSort(filter.NewSort(filter.Clause{Field: "writer:name", Ascending: true}))
	assert.Equal(t, []any{"Anonymous", "Earthsea", "The Dispossessed", "Dune"}, testutil.Titles(list(t, ds, "Book", sorted, projection.New("title"))))
}

func TestAggregateThroughRelation(t *testing.T) {
	books, err := library(t).Decorated("Book")
	require.NoError(t, err)
	rows, err := books.Aggregate(context.Background(), nil, filter.Filter{}, aggregation.Aggregation{
		Operation: aggregation.Count,
		Groups:    []aggregation.Group{{Field: "writer:name"}},
	}, 0)
	require.NoError(t, err)

	counts := map[any]any{}
	for _, r := range rows {
		counts[r.Group["writer:name"]] = r.Value
	}
	assert.EqualValues(t, 2, counts["Ursula"])
	assert.EqualValues(t, 1, counts["Frank"])
	assert.EqualValues(t, 1, counts[nil])
}
