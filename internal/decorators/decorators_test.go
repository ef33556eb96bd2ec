package decorators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/memory"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func seeded(t *testing.T) *memory.Datasource {
	t.Helper()
	ds, err := memory.FromSchemas(schematest.Library())
	require.NoError(t, err)
	books, err := ds.Collection("Book")
	require.NoError(t, err)
	books.Seed(
		collection.Record{"id": 1, "title": "Dune"},
		collection.Record{"id": 2, "title": "Earthsea"},
	)
	return ds
}

func TestCollection_SchemaIsMemoized(t *testing.T) {
	calls := 0
	ds := NewDatasource(seeded(t), func(c collection.Collection, owner collection.Datasource) *Collection {
		return NewCollection(c, owner, Hooks{RefineSchema: func(s schema.CollectionSchema) schema.CollectionSchema {
			calls++
			s.Searchable = true
			return s
		}})
	})
	books, err := ds.Decorated("Book")
	require.NoError(t, err)

	assert.True(t, books.Schema().Searchable)
	books.Schema()
	assert.Equal(t, 1, calls)

	books.MarkSchemaAsDirty()
	books.Schema()
	assert.Equal(t, 2, calls)

	assert.False(t, books.Child().Schema().Searchable)
	assert.Equal(t, collection.Datasource(ds), books.Datasource())
}

func TestCollection_DirtyPropagatesUpward(t *testing.T) {
	inner := NewDatasource[*Collection](seeded(t), func(c collection.Collection, owner collection.Datasource) *Collection {
		return NewCollection(c, owner, Hooks{})
	})
	outerCalls := 0
	outer := NewDatasource(inner, func(c collection.Collection, owner collection.Datasource) *Collection {
		return NewCollection(c, owner, Hooks{RefineSchema: func(s schema.CollectionSchema) schema.CollectionSchema {
			outerCalls++
			return s
		}})
	})
	innerBooks, _ := inner.Decorated("Book")
	outerBooks, _ := outer.Decorated("Book")

	outerBooks.Schema()
	outerBooks.Schema()
	innerBooks.MarkSchemaAsDirty()
	outerBooks.Schema()
	assert.Equal(t, 2, outerCalls)
}

func TestCollection_RefineFilter(t *testing.T) {
	ctx := context.Background()
	onlyDune := func(_ context.Context, _ *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
		return f.WithConditionTree(condtree.Intersect(f.ConditionTree, condtree.NewLeaf("title", schema.OpEqual, "Dune"))), nil
	}
	ds := NewDatasource(seeded(t), func(c collection.Collection, owner collection.Datasource) *Collection {
		return NewCollection(c, owner, Hooks{RefineFilter: onlyDune})
	})
	books, _ := ds.GetCollection("Book")

	got, err := books.List(ctx, nil, filter.PaginatedFilter{}, projection.New("id"))
	require.NoError(t, err)
	assert.Equal(t, []collection.Record{{"id": 1}}, got)

	require.NoError(t, books.Delete(ctx, nil, filter.Filter{}))
	got, err = books.List(ctx, nil, filter.PaginatedFilter{}, projection.New("id"))
	require.NoError(t, err)
	assert.Empty(t, got)

	child, _ := ds.Child().GetCollection("Book")
	rest, err := child.List(ctx, nil, filter.PaginatedFilter{}, projection.New("id"))
	require.NoError(t, err)
	assert.Equal(t, []collection.Record{{"id": 2}}, rest)
}

func TestCollection_RefineFilterErrorStopsCall(t *testing.T) {
	reject := func(context.Context, *collection.Caller, filter.PaginatedFilter) (filter.PaginatedFilter, error) {
		return filter.PaginatedFilter{}, errs.Forbiddenf("nope")
	}
	ds := NewDatasource(seeded(t), func(c collection.Collection, owner collection.Datasource) *Collection {
		return NewCollection(c, owner, Hooks{RefineFilter: reject})
	})
	books, _ := ds.GetCollection("Book")
	err := books.Update(context.Background(), nil, filter.Filter{}, collection.Record{"title": "x"})
	assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))

	created, err := books.Create(context.Background(), nil, []collection.Record{{"title": "New"}})
	require.NoError(t, err)
	assert.Equal(t, 3, created[0]["id"])
}

func TestDatasource_Lookup(t *testing.T) {
	ds := NewDatasource(seeded(t), func(c collection.Collection, owner collection.Datasource) *Collection {
		return NewCollection(c, owner, Hooks{})
	})
	assert.Len(t, ds.Collections(), 3)
	_, err := ds.GetCollection("Missing")
	assert.True(t, errs.IsNotFoundError(err))

	var names []string
	ds.Each(func(c *Collection) { names = append(names, c.Name()) })
	assert.Equal(t, []string{"Book", "Card", "Person"}, names)
}
