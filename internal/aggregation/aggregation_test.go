package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

var sales = []map[string]any{
	{"shop": "a", "amount": 10, "at": "2023-01-04T10:00:00Z"},
	{"shop": "a", "amount": 0.1, "at": "2023-01-05T10:00:00Z"},
	{"shop": "a", "amount": 0.2, "at": "2023-01-09T10:00:00Z"},
	{"shop": "b", "amount": nil, "at": "2023-02-01T10:00:00Z"},
	{"shop": "c", "amount": int64(3), "at": "2022-12-31T23:30:00Z"},
}

func TestProjection(t *testing.T) {
	a := Aggregation{Field: "amount", Operation: Sum, Groups: []Group{{Field: "shop"}, {Field: "amount"}}}
	assert.Equal(t, projection.Projection{"amount", "shop"}, a.Projection())
}

func TestApply_CountRows(t *testing.T) {
	rows, err := Aggregation{Operation: Count, Groups: []Group{{Field: "shop"}}}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Value: 1, Group: map[string]any{"shop": "b"}},
		{Value: 1, Group: map[string]any{"shop": "c"}},
		{Value: 3, Group: map[string]any{"shop": "a"}},
	}, rows)
}

func TestApply_CountFieldSkipsNulls(t *testing.T) {
	rows, err := Aggregation{Field: "amount", Operation: Count, Groups: []Group{{Field: "shop"}}}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, rows[0].Value)
	assert.Equal(t, map[string]any{"shop": "b"}, rows[0].Group)
}

func TestApply_SumIsExact(t *testing.T) {
	rows, err := Aggregation{Field: "amount", Operation: Sum}.Apply(sales[1:3], time.UTC, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.3, rows[0].Value)
}

// Avg == Sum / non-null count, and groups with only nulls are excluded.
func TestApply_AvgMatchesSumOverNonNullCount(t *testing.T) {
	groups := []Group{{Field: "shop"}}
	avg, err := Aggregation{Field: "amount", Operation: Avg, Groups: groups}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	sum, err := Aggregation{Field: "amount", Operation: Sum, Groups: groups}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	count, err := Aggregation{Field: "amount", Operation: Count, Groups: groups}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)

	byShop := func(rows []Result) map[any]any {
		out := map[any]any{}
		for _, r := range rows {
			out[r.Group["shop"]] = r.Value
		}
		return out
	}
	avgs, sums, counts := byShop(avg), byShop(sum), byShop(count)

	assert.NotContains(t, avgs, "b")
	for shop, v := range avgs {
		n := counts[shop].(int)
		require.Positive(t, n)
		assert.InDelta(t, sums[shop].(float64)/float64(n), v, 1e-9)
	}

	rowCount, err := Aggregation{Operation: Count, Groups: groups}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	assert.Contains(t, byShop(rowCount), "b")
}

func TestApply_MinMax(t *testing.T) {
	rows, err := Aggregation{Field: "amount", Operation: Max}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, rows[0].Value)

	rows, err = Aggregation{Field: "amount", Operation: Min}.Apply(sales, time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.1, rows[0].Value)
}

func TestApply_SortedThenLimited(t *testing.T) {
	rows, err := Aggregation{Operation: Count, Groups: []Group{{Field: "shop"}}}.Apply(sales, time.UTC, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, rows[1].Value)
}

func TestApply_WeekBucket(t *testing.T) {
	rows, err := Aggregation{Operation: Count, Groups: []Group{{Field: "at", Operation: Week}}}.Apply(sales[:3], time.UTC, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Result{
		{Value: 2, Group: map[string]any{"at": "2023-01-02"}},
		{Value: 1, Group: map[string]any{"at": "2023-01-09"}},
	}, rows)
}

func TestSnap(t *testing.T) {
	tests := []struct {
		op   DateOperation
		in   any
		want string
	}{
		{Week, "2023-01-04", "2023-01-02"},
		{Week, "2023-01-02", "2023-01-02"},
		{Week, "2023-01-08T12:00:00Z", "2023-01-02"},
		{Month, "2023-01-04T10:00:00Z", "2023-01-01"},
		{Year, time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC), "2023-01-01"},
		{Day, "2023-01-04T10:00:00Z", "2023-01-04"},
	}
	for _, tt := range tests {
		got, err := Snap(tt.in, tt.op, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %v", tt.op, tt.in)
	}

	_, err := Snap(42, Day, time.UTC)
	assert.True(t, errs.IsValidationError(err))
}

func TestSnap_UsesCallerTimezone(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	got, err := Snap("2022-12-31T23:30:00Z", Year, cet)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01", got)

	got, err = Snap("2022-12-31T23:30:00Z", Day, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2022-12-31", got)
}

func TestNestAndReplaceFields(t *testing.T) {
	a := Aggregation{Field: "amount", Operation: Sum, Groups: []Group{{Field: "at", Operation: Month}}}
	nested := a.Nest("order")
	assert.Equal(t, "order:amount", nested.Field)
	assert.Equal(t, Group{Field: "order:at", Operation: Month}, nested.Groups[0])
	assert.Equal(t, "amount", a.Field)

	count := Aggregation{Operation: Count}
	assert.Equal(t, count, count.Nest("order"))
}

func TestValidate(t *testing.T) {
	lib := schematest.Library()
	book := lib.Source("Book")

	assert.NoError(t, Aggregation{Operation: Count, Groups: []Group{{Field: "author:name"}}}.Validate(book))
	assert.Error(t, Aggregation{Field: "nope", Operation: Sum}.Validate(book))
	assert.True(t, errs.IsValidationError(Aggregation{Operation: "Median"}.Validate(book)))
	assert.True(t, errs.IsValidationError(Aggregation{Operation: Sum}.Validate(book)))
}
