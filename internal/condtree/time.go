package condtree

import (
	"time"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

const dateLayout = "2006-01-02"

var dateTypes = []schema.PrimitiveType{schema.TypeDate, schema.TypeDateOnly}

type unit int

const (
	unitDay unit = iota
	unitWeek
	unitMonth
	unitQuarter
	unitYear
)

// startOf truncates t to the start of its calendar unit in t's location.
// Weeks start on Monday.
func startOf(t time.Time, u unit) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	switch u {
	case unitWeek:
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case unitMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	case unitQuarter:
		return time.Date(y, ((m-1)/3)*3+1, 1, 0, 0, 0, 0, t.Location())
	case unitYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, t.Location())
	}
	return day
}

func add(t time.Time, u unit, n int) time.Time {
	switch u {
	case unitWeek:
		return t.AddDate(0, 0, 7*n)
	case unitMonth:
		return t.AddDate(0, n, 0)
	case unitQuarter:
		return t.AddDate(0, 3*n, 0)
	case unitYear:
		return t.AddDate(n, 0, 0)
	}
	return t.AddDate(0, 0, n)
}

// formatBound renders an instant for comparison against a column: a local
// calendar date for Dateonly columns, an RFC 3339 UTC timestamp otherwise.
func formatBound(t time.Time, env Env) string {
	if env.ColumnType == schema.TypeDateOnly {
		return t.In(env.Location).Format(dateLayout)
	}
	return t.UTC().Format(time.RFC3339)
}

type dateFn func(now time.Time, l Leaf) (time.Time, error)

func compareTo(op schema.Operator, fn dateFn) []*alternative {
	return []*alternative{{
		dependsOn: []schema.Operator{op},
		forTypes:  dateTypes,
		replace: func(l Leaf, env Env) (Tree, error) {
			if s, ok := l.Value.(string); ok && ir.IsDateOnly(s) {
				return l.Override(op, s), nil
			}
			t, err := fn(env.Now.In(env.Location), l)
			if err != nil {
				return nil, err
			}
			return l.Override(op, formatBound(t, env)), nil
		},
	}}
}

func leafTime(_ time.Time, l Leaf) (time.Time, error) {
	t, ok := ir.AsTime(l.Value)
	if !ok {
		return time.Time{}, errs.Filterf("operator %s on %q expects a date, got %v", l.Operator, l.Field, l.Value)
	}
	return t, nil
}

func currentTime(now time.Time, _ Leaf) (time.Time, error) { return now, nil }

func hoursAgo(now time.Time, l Leaf) (time.Time, error) {
	h, ok := ir.ToFloat(l.Value)
	if !ok {
		return time.Time{}, errs.Filterf("operator %s on %q expects a number of hours", l.Operator, l.Field)
	}
	return now.Add(-time.Duration(h * float64(time.Hour))), nil
}

type intervalFn func(now time.Time, l Leaf) (start, end time.Time, err error)

// previous is the whole unit before the current one.
func previous(u unit) intervalFn {
	return func(now time.Time, _ Leaf) (time.Time, time.Time, error) {
		current := startOf(now, u)
		return add(current, u, -1), current, nil
	}
}

// toDate runs from the start of the current unit to now.
func toDate(u unit) intervalFn {
	return func(now time.Time, _ Leaf) (time.Time, time.Time, error) {
		return startOf(now, u), now, nil
	}
}

func today(now time.Time, _ Leaf) (time.Time, time.Time, error) {
	start := startOf(now, unitDay)
	return start, add(start, unitDay, 1), nil
}

func leafDays(l Leaf) (int, error) {
	n, ok := ir.ToFloat(l.Value)
	if !ok || n < 1 {
		return 0, errs.Filterf("operator %s on %q expects a positive number of days", l.Operator, l.Field)
	}
	return int(n), nil
}

func previousXDays(now time.Time, l Leaf) (time.Time, time.Time, error) {
	days, err := leafDays(l)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := startOf(now, unitDay)
	return end.AddDate(0, 0, -days), end, nil
}

func previousXDaysToDate(now time.Time, l Leaf) (time.Time, time.Time, error) {
	days, err := leafDays(l)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return startOf(now, unitDay).AddDate(0, 0, -(days - 1)), now, nil
}

// shifted moves an interval back by shift periods of u. Used to compute the
// period preceding the one an operator designates.
func shifted(fn intervalFn, u unit, shift int, byLeafDays bool) intervalFn {
	if shift == 0 {
		return fn
	}
	return func(now time.Time, l Leaf) (time.Time, time.Time, error) {
		start, end, err := fn(now, l)
		if err != nil {
			return start, end, err
		}
		n := shift
		if byLeafDays {
			days, _ := leafDays(l)
			n *= days
		}
		return add(start, u, -n), add(end, u, -n), nil
	}
}

// between brackets the field strictly between start and end. On Dateonly
// columns bounds are whole days, so the lower bound moves one day earlier and
// a partial last day is included.
func between(fn intervalFn) []*alternative {
	return []*alternative{{
		dependsOn: []schema.Operator{schema.OpLessThan, schema.OpGreaterThan},
		forTypes:  dateTypes,
		replace: func(l Leaf, env Env) (Tree, error) {
			start, end, err := fn(env.Now.In(env.Location), l)
			if err != nil {
				return nil, err
			}
			if env.ColumnType == schema.TypeDateOnly {
				start = start.AddDate(0, 0, -1)
				if day := startOf(end, unitDay); !day.Equal(end) {
					end = day.AddDate(0, 0, 1)
				}
			}
			return Intersect(
				l.Override(schema.OpGreaterThan, formatBound(start, env)),
				l.Override(schema.OpLessThan, formatBound(end, env)),
			), nil
		},
	}}
}

func timeTransformsShifted(shift int) map[schema.Operator][]*alternative {
	return map[schema.Operator][]*alternative{
		schema.OpPreviousYear:          between(shifted(previous(unitYear), unitYear, shift, false)),
		schema.OpPreviousQuarter:       between(shifted(previous(unitQuarter), unitQuarter, shift, false)),
		schema.OpPreviousMonth:         between(shifted(previous(unitMonth), unitMonth, shift, false)),
		schema.OpPreviousWeek:          between(shifted(previous(unitWeek), unitWeek, shift, false)),
		schema.OpYesterday:             between(shifted(previous(unitDay), unitDay, shift, false)),
		schema.OpPreviousYearToDate:    between(shifted(toDate(unitYear), unitYear, shift, false)),
		schema.OpPreviousQuarterToDate: between(shifted(toDate(unitQuarter), unitQuarter, shift, false)),
		schema.OpPreviousMonthToDate:   between(shifted(toDate(unitMonth), unitMonth, shift, false)),
		schema.OpPreviousWeekToDate:    between(shifted(toDate(unitWeek), unitWeek, shift, false)),
		schema.OpToday:                 between(shifted(today, unitDay, shift, false)),
		schema.OpPreviousXDays:         between(shifted(previousXDays, unitDay, shift, true)),
		schema.OpPreviousXDaysToDate:   between(shifted(previousXDaysToDate, unitDay, shift, true)),
	}
}

func timeTransforms() map[schema.Operator][]*alternative {
	out := timeTransformsShifted(0)
	out[schema.OpBefore] = compareTo(schema.OpLessThan, leafTime)
	out[schema.OpAfter] = compareTo(schema.OpGreaterThan, leafTime)
	out[schema.OpPast] = compareTo(schema.OpLessThan, currentTime)
	out[schema.OpFuture] = compareTo(schema.OpGreaterThan, currentTime)
	out[schema.OpBeforeXHoursAgo] = compareTo(schema.OpLessThan, hoursAgo)
	out[schema.OpAfterXHoursAgo] = compareTo(schema.OpGreaterThan, hoursAgo)
	return out
}

// PreviousPeriodTree rewrites a period operator (today, previous_month, ...)
// into the GREATER_THAN/LESS_THAN bracket of the period just before it.
func PreviousPeriodTree(l Leaf, columnType schema.PrimitiveType, tz *time.Location, now time.Time) (Tree, error) {
	alts, ok := timeTransformsShifted(1)[l.Operator]
	if !ok || len(alts) == 0 {
		return nil, errs.Filterf("operator %q has no previous period", l.Operator)
	}
	if tz == nil {
		tz = time.UTC
	}
	return alts[0].replace(l, Env{Now: now, Location: tz, ColumnType: columnType})
}
