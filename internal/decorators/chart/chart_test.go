package chart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/testutil"
)

func ptr(f float64) *float64 { return &f }

func TestBuilderSimpleCharts(t *testing.T) {
	var b Builder
	assert.Equal(t, ValueChart{CountCurrent: 3}, b.Value(3))
	assert.Equal(t, 2.0, *b.Value(3, 2).CountPrevious)
	assert.Equal(t, ObjectiveChart{Value: 1, Objective: 5}, b.Objective(1, 5))
	assert.Equal(t, 0.5, b.Percentage(0.5))

	values := map[string]float64{"b": 1, "a": 3, "c": 2}
	assert.Equal(t, []Entry{{"a", 3}, {"b", 1}, {"c", 2}}, b.Distribution(values))
	assert.Equal(t, []Entry{{"b", 1}, {"c", 2}, {"a", 3}}, b.Leaderboard(values))
}

func TestTimeBasedFillsGaps(t *testing.T) {
	var b Builder
	points, err := b.TimeBased(aggregation.Month, map[string]*float64{
		"2022-01-07": ptr(1),
		"2022-01-01": ptr(3),
		"2022-03-31": ptr(2),
		"2022-03-02": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []TimePoint{
		{Label: "Jan 2022", Values: map[string]any{"value": 4.0}},
		{Label: "Feb 2022", Values: map[string]any{"value": 0.0}},
		{Label: "Mar 2022", Values: map[string]any{"value": 2.0}},
	}, points)

	weeks, err := b.TimeBased(aggregation.Week, map[string]*float64{"2023-01-02": ptr(1), "2023-01-16T10:00:00Z": ptr(1)})
	require.NoError(t, err)
	labels := make([]string, len(weeks))
	for i, w := range weeks {
		labels[i] = w.Label
	}
	assert.Equal(t, []string{"W01-2023", "W02-2023", "W03-2023"}, labels)

	_, err = b.TimeBased("Century", map[string]*float64{"2023-01-02": ptr(1)})
	assert.True(t, errs.IsValidationError(err))
}

func TestMultipleTimeBased(t *testing.T) {
	var b Builder
	out, err := b.MultipleTimeBased(aggregation.Year, []string{"2020-05-01", "2022-01-01"}, map[string][]*float64{
		"sales":   {ptr(1), ptr(2)},
		"returns": {nil, ptr(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2020", "2021", "2022"}, out.Labels)
	assert.Equal(t, []Line{{Key: "returns", Values: []float64{0, 0, 1}}, {Key: "sales", Values: []float64{1, 0, 2}}}, out.Values)

	empty, err := b.MultipleTimeBased(Quarter, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Labels)
}

func TestCollectionChart(t *testing.T) {
	ds := NewDatasource(testutil.Library(t))
	books, err := ds.Decorated("Book")
	require.NoError(t, err)

	require.NoError(t, books.AddChart("title", func(ctx context.Context, cc *Context, b Builder) (collection.Chart, error) {
		id, err := cc.RecordID()
		if err != nil {
			return nil, err
		}
		record, err := cc.Record(ctx, projection.New("title"))
		if err != nil {
			return nil, err
		}
		return b.Distribution(map[string]float64{record["title"].(string): id.(float64)}), nil
	}))
	assert.Equal(t, []string{"title"}, books.Schema().Charts)
	assert.True(t, errs.IsConfigurationError(books.AddChart("title", nil)))

	out, err := books.RenderChart(context.Background(), nil, "title", []any{2.0})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Key: "Earthsea", Value: 2}}, out)

	_, err = books.RenderChart(context.Background(), nil, "missing", []any{2.0})
	assert.True(t, errs.IsNotFoundError(err))
}

func TestDatasourceChart(t *testing.T) {
	ds := NewDatasource(testutil.Library(t))
	require.NoError(t, ds.AddChart("books", func(ctx context.Context, cc *DatasourceContext, b Builder) (collection.Chart, error) {
		books, err := cc.Datasource.GetCollection("Book")
		if err != nil {
			return nil, err
		}
		records, err := books.List(ctx, cc.Caller, filterAll, projection.New("id"))
		if err != nil {
			return nil, err
		}
		return b.Value(float64(len(records))), nil
	}))
	assert.Equal(t, []string{"books"}, ds.Schema().Charts)
	assert.True(t, errs.IsConfigurationError(ds.AddChart("books", nil)))

	out, err := ds.RenderChart(context.Background(), nil, "books")
	require.NoError(t, err)
	assert.Equal(t, ValueChart{CountCurrent: 4}, out)

	_, err = ds.RenderChart(context.Background(), nil, "nope")
	assert.True(t, errs.IsNotFoundError(err))
}

var filterAll = filter.PaginatedFilter{}
