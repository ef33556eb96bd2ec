// Package aggregation groups records and computes Count, Sum, Avg, Max and
// Min per group, with calendar bucketing of date group fields.
package aggregation

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Operation is an aggregate function.
type Operation string

const (
	Count Operation = "Count"
	Sum   Operation = "Sum"
	Avg   Operation = "Avg"
	Max   Operation = "Max"
	Min   Operation = "Min"
)

// DateOperation snaps a date group value to the start of a bucket.
type DateOperation string

const (
	Year  DateOperation = "Year"
	Month DateOperation = "Month"
	Week  DateOperation = "Week"
	Day   DateOperation = "Day"
)

// Group is one grouping field.
type Group struct {
	Field     string        `json:"field"`
	Operation DateOperation `json:"operation,omitempty"`
}

// Aggregation describes what to compute. An empty Field with Count counts rows.
type Aggregation struct {
	Field     string    `json:"field,omitempty"`
	Operation Operation `json:"operation"`
	Groups    []Group   `json:"groups,omitempty"`
}

// Result is one output row.
type Result struct {
	Value any            `json:"value"`
	Group map[string]any `json:"group"`
}

// Projection lists every field the aggregation reads.
func (a Aggregation) Projection() projection.Projection {
	var paths []string
	if a.Field != "" {
		paths = append(paths, a.Field)
	}
	for _, g := range a.Groups {
		paths = append(paths, g.Field)
	}
	return projection.New(paths...)
}

// ReplaceFields maps the aggregated field and every group field.
func (a Aggregation) ReplaceFields(fn func(string) string) Aggregation {
	out := Aggregation{Operation: a.Operation}
	if a.Field != "" {
		out.Field = fn(a.Field)
	}
	if a.Groups != nil {
		out.Groups = make([]Group, len(a.Groups))
		for i, g := range a.Groups {
			out.Groups[i] = Group{Field: fn(g.Field), Operation: g.Operation}
		}
	}
	return out
}

// Nest prefixes every field with "prefix:".
func (a Aggregation) Nest(prefix string) Aggregation {
	if prefix == "" || (a.Field == "" && len(a.Groups) == 0) {
		return a
	}
	return a.ReplaceFields(func(f string) string { return prefix + ":" + f })
}

// Override returns a copy where the non-zero parts of o replace a's.
func (a Aggregation) Override(o Aggregation) Aggregation {
	out := a
	if o.Field != "" {
		out.Field = o.Field
	}
	if o.Operation != "" {
		out.Operation = o.Operation
	}
	if o.Groups != nil {
		out.Groups = o.Groups
	}
	return out
}

// Validate checks the operation names and that every field resolves to a
// column of src.
func (a Aggregation) Validate(src schema.Source) error {
	switch a.Operation {
	case Count, Sum, Avg, Max, Min:
	default:
		return errs.Validationf("unknown aggregate operation %q", a.Operation)
	}
	if a.Field == "" && a.Operation != Count {
		return errs.Validationf("%s requires a field", a.Operation)
	}
	for _, path := range a.Projection() {
		if _, err := schema.ColumnAt(src, path); err != nil {
			return err
		}
	}
	for _, g := range a.Groups {
		switch g.Operation {
		case "", Year, Month, Week, Day:
		default:
			return errs.Validationf("unknown date operation %q", g.Operation)
		}
	}
	return nil
}

type summary struct {
	group    map[string]any
	rows     int
	nonNull  int
	sum      decimal.Decimal
	min, max any
}

// Apply aggregates records in memory. Date groups are bucketed in tz. Rows are
// sorted by ascending value; limit <= 0 keeps every row.
func (a Aggregation) Apply(records []map[string]any, tz *time.Location, limit int) ([]Result, error) {
	if tz == nil {
		tz = time.UTC
	}
	var order []string
	summaries := map[string]*summary{}
	for _, r := range records {
		group, err := a.groupOf(r, tz)
		if err != nil {
			return nil, err
		}
		key, err := ir.GroupKey(group)
		if err != nil {
			return nil, err
		}
		s, ok := summaries[key]
		if !ok {
			s = &summary{group: group, sum: decimal.Zero}
			summaries[key] = s
			order = append(order, key)
		}
		a.accumulate(s, r)
	}

	rows := make([]Result, 0, len(order))
	for _, key := range order {
		s := summaries[key]
		var value any
		switch a.Operation {
		case Count:
			if a.Field == "" {
				value = s.rows
			} else {
				value = s.nonNull
			}
		case Sum:
			f, _ := s.sum.Float64()
			value = f
		case Avg:
			if s.nonNull == 0 {
				continue
			}
			f, _ := s.sum.Div(decimal.NewFromInt(int64(s.nonNull))).Float64()
			value = f
		case Max:
			value = s.max
		case Min:
			value = s.min
		}
		rows = append(rows, Result{Value: value, Group: s.group})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c, _ := ir.Compare(rows[i].Value, rows[j].Value)
		return c < 0
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (a Aggregation) accumulate(s *summary, r map[string]any) {
	s.rows++
	if a.Field == "" {
		return
	}
	v := ir.FieldValue(r, a.Field)
	if v == nil {
		return
	}
	s.nonNull++
	if c, ok := ir.Compare(v, s.min); s.min == nil || (ok && c < 0) {
		s.min = v
	}
	if c, ok := ir.Compare(v, s.max); s.max == nil || (ok && c > 0) {
		s.max = v
	}
	if d, ok := toDecimal(v); ok {
		s.sum = s.sum.Add(d)
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	if f, ok := ir.ToFloat(v); ok {
		return decimal.NewFromFloat(f), true
	}
	return decimal.Decimal{}, false
}

func (a Aggregation) groupOf(r map[string]any, tz *time.Location) (map[string]any, error) {
	group := make(map[string]any, len(a.Groups))
	for _, g := range a.Groups {
		v := ir.FieldValue(r, g.Field)
		if g.Operation != "" && v != nil {
			snapped, err := Snap(v, g.Operation, tz)
			if err != nil {
				return nil, err
			}
			v = snapped
		}
		group[g.Field] = v
	}
	return group, nil
}

// Snap truncates a date value to the start of its bucket and returns it as a
// YYYY-MM-DD string. Timestamps are read in tz; bare dates are used as is.
// Weeks start on Monday.
func Snap(v any, op DateOperation, tz *time.Location) (string, error) {
	var day time.Time
	if s, ok := v.(string); ok && ir.IsDateOnly(s) {
		day, _ = time.Parse("2006-01-02", s)
	} else {
		t, ok := ir.AsTime(v)
		if !ok {
			return "", errs.Validationf("cannot bucket non-date value %v", v)
		}
		t = t.In(tz)
		day = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	switch op {
	case Year:
		day = time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Month:
		day = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Week:
		day = day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	}
	return day.Format("2006-01-02"), nil
}
