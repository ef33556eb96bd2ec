package hook

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

func books(t *testing.T) *Collection {
	t.Helper()
	c, err := NewDatasource(testutil.Library(t)).Decorated("Book")
	require.NoError(t, err)
	return c
}

func TestListHooksRunInOrder(t *testing.T) {
	c := books(t)
	var calls []string
	require.NoError(t, c.AddListHook(Before, func(_ context.Context, hc *ListContext) error {
		calls = append(calls, "before")
		assert.Nil(t, hc.Records)
		return nil
	}))
	require.NoError(t, c.AddListHook(After, func(_ context.Context, hc *ListContext) error {
		calls = append(calls, "after")
		hc.Records[0]["title"] = "changed"
		assert.Len(t, hc.Records, 4)
		return nil
	}))

	records, err := c.List(context.Background(), nil, filter.PaginatedFilter{}, projection.New("title"))
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, calls)
	assert.Equal(t, "Dune", records[0]["title"])
}

func TestBeforeHookAborts(t *testing.T) {
	ds := testutil.Library(t)
	c, err := NewDatasource(ds).Decorated("Book")
	require.NoError(t, err)
	require.NoError(t, c.AddCreateHook(Before, func(_ context.Context, hc *CreateContext) error {
		if hc.Data[0]["title"] == "" {
			return hc.ThrowValidationError("title is required")
		}
		return nil
	}))

	_, err = c.Create(context.Background(), nil, []collection.Record{{"title": ""}})
	require.Error(t, err)
	assert.True(t, errs.IsValidationError(err))
	assert.Contains(t, err.Error(), "title is required")

	child, err := ds.Collection("Book")
	require.NoError(t, err)
	assert.Equal(t, 4, child.Len())
}

func TestCreateUpdateDeleteHooks(t *testing.T) {
	c := books(t)
	var created []collection.Record
	require.NoError(t, c.AddCreateHook(After, func(_ context.Context, hc *CreateContext) error {
		created = hc.Records
		return nil
	}))
	require.NoError(t, c.AddUpdateHook(Before, func(_ context.Context, hc *UpdateContext) error {
		if _, ok := hc.Patch["id"]; ok {
			return hc.ThrowForbiddenError("ids are immutable")
		}
		return nil
	}))
	require.NoError(t, c.AddDeleteHook(After, func(_ context.Context, hc *DeleteContext) error {
		return hc.ThrowError("deleted %v", hc.Filter.ConditionTree)
	}))

	_, err := c.Create(context.Background(), nil, []collection.Record{{"title": "Solaris"}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Solaris", created[0]["title"])

	err = c.Update(context.Background(), nil, filter.Filter{}, collection.Record{"id": 9})
	assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))

	err = c.Delete(context.Background(), nil, filter.Filter{ConditionTree: condtree.NewLeaf("id", schema.OpEqual, 1)})
	assert.Equal(t, errs.CodeUnprocessable, errs.CodeOf(err))
}

func TestAggregateHooks(t *testing.T) {
	c := books(t)
	var results []aggregation.Result
	require.NoError(t, c.AddAggregateHook(After, func(_ context.Context, hc *AggregateContext) error {
		results = hc.Results
		return nil
	}))
	_, err := c.Aggregate(context.Background(), nil, filter.Filter{}, aggregation.Aggregation{Operation: aggregation.Count}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 4, results[0].Value)

	assert.True(t, errs.IsConfigurationError(c.AddListHook("Around", nil)))
}
