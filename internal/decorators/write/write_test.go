package write

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	return NewDatasource(testutil.Library(t))
}

func decorated(t *testing.T, ds *decorators.Datasource[*Collection], name string) *Collection {
	t.Helper()
	c, err := ds.Decorated(name)
	require.NoError(t, err)
	return c
}

func find(t *testing.T, c collection.Collection, field string, value any, p projection.Projection) collection.Record {
	t.Helper()
	f := filter.PaginatedFilter{}.WithConditionTree(condtree.NewLeaf(field, schema.OpEqual, value))
	records, err := c.List(context.Background(), nil, f, p)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func TestReplaceFieldWriting(t *testing.T) {
	ds := library(t)
	people := decorated(t, ds, "Person")
	require.NoError(t, people.ReplaceFieldWriting("name", func(_ context.Context, value any, wc *Context) (collection.Record, error) {
		assert.Equal(t, ActionCreate, wc.Action)
		return collection.Record{"name": strings.ToUpper(value.(string)), "birth_date": "1921-09-12"}, nil
	}))
	assert.False(t, people.Schema().Fields["name"].(schema.Column).IsReadOnly)

	_, err := people.Create(context.Background(), nil, []collection.Record{{"name": "Lem"}})
	require.NoError(t, err)
	got := find(t, people, "name", "LEM", projection.New("birth_date"))
	assert.Equal(t, "1921-09-12", got["birth_date"])

	require.NoError(t, people.ReplaceFieldWriting("birth_date", nil))
	assert.True(t, people.Schema().Fields["birth_date"].(schema.Column).IsReadOnly)

	assert.True(t, errs.IsNotFoundError(people.ReplaceFieldWriting("nope", nil)))
	assert.True(t, errs.IsConfigurationError(people.ReplaceFieldWriting("books", nil)))
}

func TestWriteHandlerCycle(t *testing.T) {
	books := decorated(t, library(t), "Book")
	require.NoError(t, books.ReplaceFieldWriting("title", func(context.Context, any, *Context) (collection.Record, error) {
		return collection.Record{"published_at": "2000-01-01T00:00:00Z"}, nil
	}))
	require.NoError(t, books.ReplaceFieldWriting("published_at", func(context.Context, any, *Context) (collection.Record, error) {
		return collection.Record{"title": "again"}, nil
	}))

	_, err := books.Create(context.Background(), nil, []collection.Record{{"title": "x"}})
	require.Error(t, err)
	assert.True(t, errs.IsCycleError(err))
	assert.Contains(t, err.Error(), "Cycle detected: title -> published_at.")
}

func TestWriteHandlerConflict(t *testing.T) {
	books := decorated(t, library(t), "Book")
	require.NoError(t, books.ReplaceFieldWriting("title", func(_ context.Context, v any, _ *Context) (collection.Record, error) {
		return collection.Record{"title": v, "author_id": 1}, nil
	}))

	_, err := books.Create(context.Background(), nil, []collection.Record{{"title": "x", "author_id": 2}})
	assert.True(t, errs.IsConfigurationError(err))

	_, err = books.Create(context.Background(), nil, []collection.Record{{"title": "x"}})
	require.NoError(t, err)
}

func TestWriteHandlerOutputIsValidated(t *testing.T) {
	books := decorated(t, library(t), "Book")
	require.NoError(t, books.ReplaceFieldWriting("title", func(context.Context, any, *Context) (collection.Record, error) {
		return collection.Record{"author_id": "not a number"}, nil
	}))
	_, err := books.Create(context.Background(), nil, []collection.Record{{"title": "x"}})
	assert.True(t, errs.IsValidationError(err))
}

func TestDeepMerge(t *testing.T) {
	merged, err := deepMerge(
		collection.Record{"author": map[string]any{"name": "A"}},
		collection.Record{"author": map[string]any{"birth_date": "2000-01-01"}, "title": "T"},
	)
	require.NoError(t, err)
	assert.Equal(t, collection.Record{"author": map[string]any{"name": "A", "birth_date": "2000-01-01"}, "title": "T"}, merged)

	_, err = deepMerge(collection.Record{"author": map[string]any{"name": "A"}}, collection.Record{"author": map[string]any{"name": "B"}})
	assert.True(t, errs.IsConfigurationError(err))
}

func TestCreateWithManyToOne(t *testing.T) {
	ds := library(t)
	books := decorated(t, ds, "Book")
	_, err := books.Create(context.Background(), nil, []collection.Record{
		{"title": "Solaris", "author": map[string]any{"name": "Stanislaw"}},
		{"title": "The Lathe of Heaven", "author_id": 1, "author": map[string]any{"name": "Ursula K."}},
	})
	require.NoError(t, err)

	solaris := find(t, books, "title", "Solaris", projection.New("author:name"))
	assert.Equal(t, map[string]any{"name": "Stanislaw"}, solaris["author"])

	ursula := find(t, decorated(t, ds, "Person"), "id", 1, projection.New("name"))
	assert.Equal(t, "Ursula K.", ursula["name"])
}

func TestCreateWithOneToOne(t *testing.T) {
	ds := library(t)
	people := decorated(t, ds, "Person")
	created, err := people.Create(context.Background(), nil, []collection.Record{{"name": "Ada", "card": map[string]any{"number": "B-2"}}})
	require.NoError(t, err)
	require.Len(t, created, 1)

	card := find(t, decorated(t, ds, "Card"), "number", "B-2", projection.New("owner_id"))
	assert.Equal(t, created[0]["id"], card["owner_id"])
}

func TestUpdateRelations(t *testing.T) {
	ds := library(t)
	books := decorated(t, ds, "Book")
	people := decorated(t, ds, "Person")
	ctx := context.Background()

	byID := func(id int) filter.Filter {
		return filter.Filter{ConditionTree: condtree.NewLeaf("id", schema.OpEqual, id)}
	}

	require.NoError(t, books.Update(ctx, nil, byID(1), collection.Record{"author": map[string]any{"name": "Frank H."}}))
	assert.Equal(t, "Frank H.", find(t, people, "id", 2, projection.New("name"))["name"])

	require.NoError(t, books.Update(ctx, nil, byID(4), collection.Record{"title": "Known", "author": map[string]any{"name": "Anon"}}))
	known := find(t, books, "id", 4, projection.New("title", "author:name"))
	assert.Equal(t, "Known", known["title"])
	assert.Equal(t, map[string]any{"name": "Anon"}, known["author"])

	require.NoError(t, people.Update(ctx, nil, byID(2), collection.Record{"card": map[string]any{"number": "C-3"}}))
	card := find(t, decorated(t, ds, "Card"), "number", "C-3", projection.New("owner_id"))
	assert.EqualValues(t, 2, card["owner_id"])

	require.NoError(t, people.Update(ctx, nil, byID(1), collection.Record{"card": map[string]any{"number": "A-9"}}))
	assert.EqualValues(t, 1, find(t, decorated(t, ds, "Card"), "number", "A-9", projection.New("owner_id"))["owner_id"])
}
