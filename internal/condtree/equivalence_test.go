package condtree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

var wednesday = time.Date(2023, 1, 4, 10, 0, 0, 0, time.UTC)

func sampleValue(op schema.Operator) any {
	switch op {
	case schema.OpIn, schema.OpNotIn, schema.OpIncludesAll:
		return []any{1, 2}
	case schema.OpPreviousXDays, schema.OpPreviousXDaysToDate, schema.OpAfterXHoursAgo,
		schema.OpBeforeXHoursAgo, schema.OpLongerThan, schema.OpShorterThan:
		return 3
	case schema.OpBefore, schema.OpAfter:
		return "2023-01-01T00:00:00Z"
	case schema.OpBlank, schema.OpPresent, schema.OpMissing, schema.OpPast, schema.OpFuture,
		schema.OpToday, schema.OpYesterday, schema.OpPreviousWeek, schema.OpPreviousWeekToDate,
		schema.OpPreviousMonth, schema.OpPreviousMonthToDate, schema.OpPreviousQuarter,
		schema.OpPreviousQuarterToDate, schema.OpPreviousYear, schema.OpPreviousYearToDate:
		return nil
	}
	return "x"
}

// Every leaf of a produced equivalent uses an allowed operator, and an
// equivalent exists exactly when HasEquivalentTree says so.
func TestEquivalence_ConsistentWithHas(t *testing.T) {
	sets := []schema.OperatorSet{
		schema.NewOperatorSet(),
		schema.NewOperatorSet(schema.OpEqual),
		schema.NewOperatorSet(schema.OpIn),
		schema.NewOperatorSet(schema.OpNotIn),
		schema.NewOperatorSet(schema.OpEqual, schema.OpNotEqual),
		schema.NewOperatorSet(schema.OpLessThan, schema.OpGreaterThan),
		schema.NewOperatorSet(schema.OpLike, schema.OpIn),
	}
	types := []schema.PrimitiveType{schema.TypeString, schema.TypeNumber, schema.TypeDate, schema.TypeDateOnly}

	for _, allowed := range sets {
		for _, columnType := range types {
			for _, op := range schema.AllOperators {
				leaf := NewLeaf("field", op, sampleValue(op))
				has, err := HasEquivalentTree(op, allowed, columnType)
				require.NoError(t, err)

				tree, ok, err := GetEquivalentTreeAt(leaf, allowed, columnType, time.UTC, wednesday)
				require.NoError(t, err, "%s on %s with %s", op, columnType, allowed.Key())
				assert.Equal(t, has, ok, "%s on %s with %s", op, columnType, allowed.Key())
				if ok && tree != nil {
					assert.True(t, tree.EveryLeaf(func(l Leaf) bool { return allowed.Has(l.Operator) }),
						"%s on %s with %s produced %v", op, columnType, allowed.Key(), tree)
				}
			}
		}
	}
}

func matchesAt(t *testing.T, tree Tree, record map[string]any, ev Evaluation) bool {
	t.Helper()
	if tree == nil {
		return true
	}
	ok, err := tree.Match(record, ev)
	require.NoError(t, err)
	return ok
}

// An equivalent tree selects exactly the records the original leaf selects.
func TestEquivalence_PreservesMeaning(t *testing.T) {
	ev := Evaluation{Location: time.UTC, Now: wednesday}
	sets := []schema.OperatorSet{
		schema.NewOperatorSet(schema.OpEqual),
		schema.NewOperatorSet(schema.OpIn),
		schema.NewOperatorSet(schema.OpNotIn),
		schema.NewOperatorSet(schema.OpNotEqual),
		schema.NewOperatorSet(schema.OpMissing),
		schema.NewOperatorSet(schema.OpLike),
		schema.NewOperatorSet(schema.OpLike, schema.OpIn),
		schema.NewOperatorSet(schema.OpIn, schema.OpNotIn),
		schema.NewOperatorSet(schema.OpEqual, schema.OpIn),
		schema.NewOperatorSet(schema.OpLessThan, schema.OpGreaterThan),
		schema.NewOperatorSet(schema.OpLessThan, schema.OpGreaterThan, schema.OpEqual),
	}
	tests := []struct {
		columnType schema.PrimitiveType
		records    []map[string]any
		leaves     []Leaf
	}{
		{
			columnType: schema.TypeString,
			records: []map[string]any{
				{"f": "Dune"}, {"f": "dune"}, {"f": "DUNE"}, {"f": "The Dune Sea"}, {"f": ""}, {"f": nil}, {},
			},
			leaves: []Leaf{
				NewLeaf("f", schema.OpBlank, nil),
				NewLeaf("f", schema.OpPresent, nil),
				NewLeaf("f", schema.OpMissing, nil),
				NewLeaf("f", schema.OpEqual, "Dune"),
				NewLeaf("f", schema.OpNotEqual, "Dune"),
				NewLeaf("f", schema.OpIn, []any{"Dune", ""}),
				NewLeaf("f", schema.OpNotIn, []any{"Dune", nil}),
				NewLeaf("f", schema.OpContains, "une"),
				NewLeaf("f", schema.OpStartsWith, "Du"),
				NewLeaf("f", schema.OpEndsWith, "Sea"),
				NewLeaf("f", schema.OpLike, "D%"),
				NewLeaf("f", schema.OpILike, "dune"),
			},
		},
		{
			columnType: schema.TypeNumber,
			records:    []map[string]any{{"f": 1}, {"f": 2.0}, {"f": 0}, {"f": nil}, {}},
			leaves: []Leaf{
				NewLeaf("f", schema.OpBlank, nil),
				NewLeaf("f", schema.OpPresent, nil),
				NewLeaf("f", schema.OpMissing, nil),
				NewLeaf("f", schema.OpEqual, 1),
				NewLeaf("f", schema.OpNotEqual, 1),
				NewLeaf("f", schema.OpIn, []any{1, 2}),
				NewLeaf("f", schema.OpNotIn, []any{1, 2}),
			},
		},
		{
			columnType: schema.TypeDate,
			records: []map[string]any{
				{"f": "2023-01-02T23:59:00Z"}, {"f": "2023-01-03T00:01:00Z"},
				{"f": "2023-01-03T23:59:00Z"}, {"f": "2023-01-04T00:01:00Z"},
				{"f": "2023-01-04T23:59:00Z"}, {"f": "2023-01-05T00:01:00Z"},
				{"f": nil},
			},
			leaves: []Leaf{
				NewLeaf("f", schema.OpToday, nil),
				NewLeaf("f", schema.OpYesterday, nil),
				NewLeaf("f", schema.OpPast, nil),
				NewLeaf("f", schema.OpFuture, nil),
				NewLeaf("f", schema.OpBefore, "2023-01-04T00:00:00Z"),
				NewLeaf("f", schema.OpAfter, "2023-01-04T00:00:00Z"),
				NewLeaf("f", schema.OpPreviousXDays, 2),
				NewLeaf("f", schema.OpPreviousWeekToDate, nil),
				NewLeaf("f", schema.OpBlank, nil),
				NewLeaf("f", schema.OpPresent, nil),
			},
		},
	}

	for _, tt := range tests {
		for _, leaf := range tt.leaves {
			for _, allowed := range sets {
				tree, ok, err := GetEquivalentTreeAt(leaf, allowed, tt.columnType, ev.Location, ev.Now)
				require.NoError(t, err)
				if !ok {
					continue
				}
				for _, record := range tt.records {
					assert.Equal(t, matchesAt(t, leaf, record, ev), matchesAt(t, tree, record, ev),
						"%s %s on %s with %s, record %v", tt.columnType, leaf.Operator, leaf.Value, allowed.Key(), record)
				}
			}
		}
	}
}

func TestEquivalence_ILikeIsNotExpressedThroughLike(t *testing.T) {
	has, err := HasEquivalentTree(schema.OpILike, schema.NewOperatorSet(schema.OpLike), schema.TypeString)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = HasEquivalentTree(schema.OpILike, schema.NewOperatorSet(schema.OpILike), schema.TypeString)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestEquivalence_BlankOnStringNeedsEmptyStringCheck(t *testing.T) {
	for _, op := range []schema.Operator{schema.OpBlank, schema.OpPresent} {
		has, err := HasEquivalentTree(op, schema.NewOperatorSet(schema.OpMissing, schema.OpNotEqual), schema.TypeString)
		require.NoError(t, err)
		assert.Equal(t, op == schema.OpPresent, has, op)
	}

	tree, ok, err := GetEquivalentTree(NewLeaf("name", schema.OpPresent, nil),
		schema.NewOperatorSet(schema.OpNotEqual), schema.TypeString, time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	want := Intersect(NewLeaf("name", schema.OpNotEqual, nil), NewLeaf("name", schema.OpNotEqual, ""))
	assert.True(t, Equal(want, tree))
}

func TestEquivalence_TodayBracketsTheCallerDay(t *testing.T) {
	allowed := schema.NewOperatorSet(schema.OpLessThan, schema.OpGreaterThan)
	tree, ok, err := GetEquivalentTreeAt(NewLeaf("f", schema.OpToday, nil), allowed, schema.TypeDate, time.UTC, wednesday)
	require.NoError(t, err)
	require.True(t, ok)

	ev := Evaluation{Now: wednesday}
	assert.False(t, matchesAt(t, tree, map[string]any{"f": "2023-01-03T23:59:00Z"}, ev))
	assert.True(t, matchesAt(t, tree, map[string]any{"f": "2023-01-04T00:01:00Z"}, ev))
	assert.True(t, matchesAt(t, tree, map[string]any{"f": "2023-01-04T23:59:00Z"}, ev))
	assert.False(t, matchesAt(t, tree, map[string]any{"f": "2023-01-05T00:01:00Z"}, ev))
	assert.False(t, matchesAt(t, tree, map[string]any{"f": nil}, ev))
}

func TestEquivalence_BlankOnNumberThroughMissingEqualIn(t *testing.T) {
	tree, ok, err := GetEquivalentTree(NewLeaf("age", schema.OpBlank, nil),
		schema.NewOperatorSet(schema.OpIn), schema.TypeNumber, time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, Equal(NewLeaf("age", schema.OpIn, []any{nil}), tree))
}

func TestEquivalence_EqualIsIdentityWhenAllowed(t *testing.T) {
	tree, ok, err := GetEquivalentTree(NewLeaf("age", schema.OpBlank, nil),
		schema.NewOperatorSet(schema.OpEqual, schema.OpIn), schema.TypeNumber, time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, Equal(NewLeaf("age", schema.OpEqual, nil), tree))
}

func TestEquivalence_BlankOnStringUsesIn(t *testing.T) {
	tree, ok, err := GetEquivalentTree(NewLeaf("name", schema.OpBlank, nil),
		schema.NewOperatorSet(schema.OpIn), schema.TypeString, time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, Equal(NewLeaf("name", schema.OpIn, []any{nil, ""}), tree))
}

func TestEquivalence_NotInBecomesIntersection(t *testing.T) {
	tree, ok, err := GetEquivalentTree(NewLeaf("id", schema.OpNotIn, []any{1, 2}),
		schema.NewOperatorSet(schema.OpNotEqual), schema.TypeNumber, time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	want := Intersect(NewLeaf("id", schema.OpNotEqual, 1), NewLeaf("id", schema.OpNotEqual, 2))
	assert.True(t, Equal(want, tree))
}

func TestEquivalence_NoPath(t *testing.T) {
	has, err := HasEquivalentTree(schema.OpEqual, schema.NewOperatorSet(), schema.TypeString)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = HasEquivalentTree(schema.OpBlank, schema.NewOperatorSet(schema.OpNotIn), schema.TypeString)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = HasEquivalentTree(schema.Operator("bogus"), schema.NewOperatorSet(), schema.TypeString)
	assert.True(t, errs.IsFilterError(err))
}

func TestEquivalence_Patterns(t *testing.T) {
	allowed := schema.NewOperatorSet(schema.OpLike)
	tests := map[schema.Operator]string{
		schema.OpContains:   "%an%",
		schema.OpStartsWith: "an%",
		schema.OpEndsWith:   "%an",
	}
	for op, pattern := range tests {
		tree, ok, err := GetEquivalentTree(NewLeaf("name", op, "an"), allowed, schema.TypeString, time.UTC)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, Equal(NewLeaf("name", schema.OpLike, pattern), tree), "%s", op)
	}

	_, _, err := GetEquivalentTree(NewLeaf("name", schema.OpContains, ""), allowed, schema.TypeString, time.UTC)
	assert.True(t, errs.IsFilterError(err))
}

func TestEquivalence_Memoized(t *testing.T) {
	allowed := schema.NewOperatorSet(schema.OpEqual, schema.OpShorterThan)
	_, err := HasEquivalentTree(schema.OpIn, allowed, schema.TypeEnum)
	require.NoError(t, err)

	key := resolutionKey{op: schema.OpIn, columnType: schema.TypeEnum, allowed: allowed.Key()}
	defaultResolver.mu.Lock()
	defer defaultResolver.mu.Unlock()
	assert.True(t, defaultResolver.known[key])
	assert.NotNil(t, defaultResolver.cache[key])
}

func bracket(t *testing.T, op schema.Operator, value any, columnType schema.PrimitiveType, tz *time.Location, now time.Time) (any, any) {
	t.Helper()
	allowed := schema.NewOperatorSet(schema.OpLessThan, schema.OpGreaterThan)
	tree, ok, err := GetEquivalentTreeAt(NewLeaf("d", op, value), allowed, columnType, tz, now)
	require.NoError(t, err)
	require.True(t, ok)
	b := tree.(Branch)
	require.Len(t, b.Conditions, 2)
	return b.Conditions[0].(Leaf).Value, b.Conditions[1].(Leaf).Value
}

func TestEquivalence_Intervals(t *testing.T) {
	tests := []struct {
		op       schema.Operator
		value    any
		from, to string
	}{
		{schema.OpToday, nil, "2023-01-04T00:00:00Z", "2023-01-05T00:00:00Z"},
		{schema.OpYesterday, nil, "2023-01-03T00:00:00Z", "2023-01-04T00:00:00Z"},
		{schema.OpPreviousWeek, nil, "2022-12-26T00:00:00Z", "2023-01-02T00:00:00Z"},
		{schema.OpPreviousWeekToDate, nil, "2023-01-02T00:00:00Z", "2023-01-04T10:00:00Z"},
		{schema.OpPreviousMonth, nil, "2022-12-01T00:00:00Z", "2023-01-01T00:00:00Z"},
		{schema.OpPreviousQuarter, nil, "2022-10-01T00:00:00Z", "2023-01-01T00:00:00Z"},
		{schema.OpPreviousYear, nil, "2022-01-01T00:00:00Z", "2023-01-01T00:00:00Z"},
		{schema.OpPreviousYearToDate, nil, "2023-01-01T00:00:00Z", "2023-01-04T10:00:00Z"},
		{schema.OpPreviousXDays, 3, "2023-01-01T00:00:00Z", "2023-01-04T00:00:00Z"},
		{schema.OpPreviousXDaysToDate, 3, "2023-01-02T00:00:00Z", "2023-01-04T10:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			from, to := bracket(t, tt.op, tt.value, schema.TypeDate, time.UTC, wednesday)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestEquivalence_IntervalInCallerTimezone(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	lateEvening := time.Date(2023, 1, 4, 23, 30, 0, 0, time.UTC)

	from, to := bracket(t, schema.OpToday, nil, schema.TypeDate, cet, lateEvening)
	assert.Equal(t, "2023-01-04T23:00:00Z", from)
	assert.Equal(t, "2023-01-05T23:00:00Z", to)
}

func TestEquivalence_DateOnlyBoundsAreInclusiveDays(t *testing.T) {
	from, to := bracket(t, schema.OpYesterday, nil, schema.TypeDateOnly, time.UTC, wednesday)
	assert.Equal(t, "2023-01-02", from)
	assert.Equal(t, "2023-01-04", to)

	from, to = bracket(t, schema.OpPreviousWeekToDate, nil, schema.TypeDateOnly, time.UTC, wednesday)
	assert.Equal(t, "2023-01-01", from)
	assert.Equal(t, "2023-01-05", to)
}

func TestEquivalence_Comparisons(t *testing.T) {
	allowed := schema.NewOperatorSet(schema.OpLessThan, schema.OpGreaterThan)

	tree, _, err := GetEquivalentTreeAt(NewLeaf("d", schema.OpPast, nil), allowed, schema.TypeDate, time.UTC, wednesday)
	require.NoError(t, err)
	assert.True(t, Equal(NewLeaf("d", schema.OpLessThan, "2023-01-04T10:00:00Z"), tree))

	tree, _, err = GetEquivalentTreeAt(NewLeaf("d", schema.OpBeforeXHoursAgo, 2), allowed, schema.TypeDate, time.UTC, wednesday)
	require.NoError(t, err)
	assert.True(t, Equal(NewLeaf("d", schema.OpLessThan, "2023-01-04T08:00:00Z"), tree))

	tree, _, err = GetEquivalentTreeAt(NewLeaf("d", schema.OpAfter, "2023-01-01"), allowed, schema.TypeDateOnly, time.UTC, wednesday)
	require.NoError(t, err)
	assert.True(t, Equal(NewLeaf("d", schema.OpGreaterThan, "2023-01-01"), tree))
}

func TestPreviousPeriodTree(t *testing.T) {
	tree, err := PreviousPeriodTree(NewLeaf("d", schema.OpPreviousMonth, nil), schema.TypeDate, time.UTC, wednesday)
	require.NoError(t, err)
	want := Intersect(
		NewLeaf("d", schema.OpGreaterThan, "2022-11-01T00:00:00Z"),
		NewLeaf("d", schema.OpLessThan, "2022-12-01T00:00:00Z"),
	)
	assert.True(t, Equal(want, tree))

	tree, err = PreviousPeriodTree(NewLeaf("d", schema.OpPreviousXDays, 2), schema.TypeDate, time.UTC, wednesday)
	require.NoError(t, err)
	want = Intersect(
		NewLeaf("d", schema.OpGreaterThan, "2022-12-31T00:00:00Z"),
		NewLeaf("d", schema.OpLessThan, "2023-01-02T00:00:00Z"),
	)
	assert.True(t, Equal(want, tree))

	_, err = PreviousPeriodTree(NewLeaf("d", schema.OpPast, nil), schema.TypeDate, time.UTC, wednesday)
	assert.True(t, errs.IsFilterError(err))
}
