package override

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

func TestHandlers(t *testing.T) {
	ctx := context.Background()
	base, err := memory.FromSchemas(schematest.Library())
	require.NoError(t, err)
	raw, _ := base.Collection("Book")
	raw.Seed(collection.Record{"id": 1, "title": "Dune"})
	books, err := NewDatasource(base).Decorated("Book")
	require.NoError(t, err)

	books.AddCreateHandler(func(ctx context.Context, cc *CreateContext) ([]collection.Record, error) {
		for _, r := range cc.Data {
			r["title"] = "[draft] " + r["title"].(string)
		}
		return cc.Collection.Create(ctx, cc.Caller, cc.Data)
	})
	var deleted filter.Filter
	books.AddDeleteHandler(func(_ context.Context, cc *DeleteContext) error {
		deleted = cc.Filter
		return nil
	})

	input := []collection.Record{{"title": "Hyperion"}}
	created, err := books.Create(ctx, nil, input)
	require.NoError(t, err)
	assert.Equal(t, "[draft] Hyperion", created[0]["title"])
	assert.Equal(t, "Hyperion", input[0]["title"])

	byID := filter.Filter{ConditionTree: condtree.NewLeaf("id", schema.OpEqual, 1)}
	require.NoError(t, books.Delete(ctx, nil, byID))
	assert.True(t, byID.Equal(deleted))
	assert.Equal(t, 2, raw.Len())

	require.NoError(t, books.Update(ctx, nil, byID, collection.Record{"title": "Dune II"}))
	got, err := books.List(ctx, nil, byID.Paginated(), projection.New("title"))
	require.NoError(t, err)
	assert.Equal(t, []collection.Record{{"title": "Dune II"}}, got)
}
