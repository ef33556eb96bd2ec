package renamefield

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/testutil"
)

func library(t *testing.T) (*Datasource, *Collection, *Collection) {
	t.Helper()
	ds := NewDatasource(testutil.Library(t))
	books, err := ds.Decorated("Book")
	require.NoError(t, err)
	people, err := ds.Decorated("Person")
	require.NoError(t, err)
	return ds, books, people
}

func TestRenameField_ListThroughRelation(t *testing.T) {
	ctx := context.Background()
	_, books, people := library(t)
	require.NoError(t, books.RenameField("title", "label"))
	require.NoError(t, people.RenameField("name", "fullName"))

	assert.Contains(t, books.Schema().Fields, "label")
	assert.NotContains(t, books.Schema().Fields, "title")

	f := filter.Filter{ConditionTree: condtree.NewLeaf("author:fullName", schema.OpEqual, "Ursula")}.Paginated().
		WithSort(filter.NewSort(filter.Clause{Field: "label", Ascending: false}))
	records, err := books.List(ctx, nil, f, projection.New("label", "author:fullName"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "The Dispossessed", records[0]["label"])
	assert.Equal(t, "Earthsea", records[1]["label"])
	author, ok := records[0]["author"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ursula", author["fullName"])
	assert.NotContains(t, records[0], "title")
}

func TestRenameField_RewritesRelationKeys(t *testing.T) {
	_, books, people := library(t)
	require.NoError(t, people.RenameField("id", "pid"))
	require.NoError(t, books.RenameField("author_id", "writer_id"))

	author := books.Schema().Fields["author"].(schema.ManyToOne)
	assert.Equal(t, "writer_id", author.ForeignKey)
	assert.Equal(t, "pid", author.ForeignKeyTarget)

	written := people.Schema().Fields["books"].(schema.OneToMany)
	assert.Equal(t, "writer_id", written.OriginKey)
	assert.Equal(t, "pid", written.OriginKeyTarget)
}

func TestRenameField_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	_, books, _ := library(t)
	require.NoError(t, books.RenameField("title", "label"))

	created, err := books.Create(ctx, nil, []collection.Record{{"label": "Lavinia", "author_id": 1}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Lavinia", created[0]["label"])
	assert.NotContains(t, created[0], "title")

	where := filter.Filter{ConditionTree: condtree.NewLeaf("label", schema.OpEqual, "Lavinia")}
	require.NoError(t, books.Update(ctx, nil, where, collection.Record{"label": "Lavinia (2008)"}))

	records, err := books.Child().List(ctx, nil, filter.Filter{ConditionTree: condtree.NewLeaf("title", schema.OpEqual, "Lavinia (2008)")}.Paginated(), projection.New("id"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRenameField_RevertAndErrors(t *testing.T) {
	_, books, _ := library(t)
	require.NoError(t, books.RenameField("title", "label"))
	require.NoError(t, books.RenameField("label", "heading"))
	assert.Contains(t, books.Schema().Fields, "heading")
	assert.NotContains(t, books.Schema().Fields, "label")

	require.NoError(t, books.RenameField("heading", "title"))
	assert.Contains(t, books.Schema().Fields, "title")
	assert.Empty(t, books.toChild)
	assert.Empty(t, books.fromChild)

	assert.True(t, errs.IsNotFoundError(books.RenameField("nope", "x")))
	assert.True(t, errs.IsConfigurationError(books.RenameField("title", "id")))
}

func TestRenameField_AggregateGroups(t *testing.T) {
	ctx := context.Background()
	_, books, people := library(t)
	require.NoError(t, people.RenameField("name", "fullName"))

	results, err := books.Aggregate(ctx, nil, filter.Filter{}, aggregation.Aggregation{
		Operation: aggregation.Count,
		Groups:    []aggregation.Group{{Field: "author:fullName"}},
	}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Contains(t, r.Group, "author:fullName")
	}
}

func TestRenameCollection(t *testing.T) {
	ctx := context.Background()
	ds, books, _ := library(t)
	require.NoError(t, ds.RenameCollection("Person", "Author"))

	_, err := ds.GetCollection("Person")
	assert.True(t, errs.IsNotFoundError(err))
	assert.Contains(t, err.Error(), `has been renamed to "Author"`)

	authors, err := ds.GetCollection("Author")
	require.NoError(t, err)
	assert.Equal(t, "Author", authors.Name())
	assert.Equal(t, "Author", books.Schema().Fields["author"].(schema.ManyToOne).ForeignCollection)

	assert.True(t, errs.IsConfigurationError(ds.RenameCollection("Book", "Author")))
	assert.True(t, errs.IsConfigurationError(ds.RenameCollection("Author", "Writer")))

	records, err := books.List(ctx, nil, filter.PaginatedFilter{}, projection.New("title", "author:name"))
	require.NoError(t, err)
	assert.Len(t, records, 4)
}
