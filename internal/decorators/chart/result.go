package chart

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
)

// Quarter is a time range only charts know about; aggregations cannot
// bucket by quarter.
const Quarter aggregation.DateOperation = "Quarter"

type ValueChart struct {
	CountCurrent  float64  `json:"countCurrent"`
	CountPrevious *float64 `json:"countPrevious"`
}

type ObjectiveChart struct {
	Value     float64 `json:"value"`
	Objective float64 `json:"objective"`
}

// Entry is one slice of a distribution or one row of a leaderboard.
type Entry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

type TimePoint struct {
	Label  string         `json:"label"`
	Values map[string]any `json:"values"`
}

type Line struct {
	Key    string    `json:"key"`
	Values []float64 `json:"values"`
}

type MultipleTimeBasedChart struct {
	Labels []string `json:"labels"`
	Values []Line   `json:"values"`
}

// Builder formats chart payloads. It is handed to every chart definition.
type Builder struct{}

func (Builder) Value(current float64, previous ...float64) ValueChart {
	out := ValueChart{CountCurrent: current}
	if len(previous) > 0 {
		out.CountPrevious = &previous[0]
	}
	return out
}

// Distribution renders entries in key order.
func (Builder) Distribution(values map[string]float64) []Entry {
	out := make([]Entry, 0, len(values))
	for _, k := range ir.SortedKeys(values) {
		out = append(out, Entry{Key: k, Value: values[k]})
	}
	return out
}

func (Builder) Percentage(value float64) float64 { return value }

func (Builder) Objective(value, objective float64) ObjectiveChart {
	return ObjectiveChart{Value: value, Objective: objective}
}

// Leaderboard renders entries by ascending value.
func (b Builder) Leaderboard(values map[string]float64) []Entry {
	out := b.Distribution(values)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// TimeBased sums values per period and fills the gaps between the first
// and last date with zeros. Keys are dates or timestamps.
func (Builder) TimeBased(timeRange aggregation.DateOperation, values map[string]*float64) ([]TimePoint, error) {
	points := make([]point, 0, len(values))
	for _, k := range ir.SortedKeys(values) {
		points = append(points, point{date: k, value: values[k]})
	}
	return timeBased(timeRange, points)
}

// MultipleTimeBased renders one series per line over the same dates.
func (Builder) MultipleTimeBased(timeRange aggregation.DateOperation, dates []string, lines map[string][]*float64) (MultipleTimeBasedChart, error) {
	if len(dates) == 0 || len(lines) == 0 {
		return MultipleTimeBasedChart{}, nil
	}
	var out MultipleTimeBasedChart
	for _, key := range ir.SortedKeys(lines) {
		values := lines[key]
		if len(values) != len(dates) {
			return MultipleTimeBasedChart{}, errs.Validationf("line %q has %d values for %d dates", key, len(values), len(dates))
		}
		points := make([]point, len(dates))
		for i, d := range dates {
			points[i] = point{date: d, value: values[i]}
		}
		series, err := timeBased(timeRange, points)
		if err != nil {
			return MultipleTimeBasedChart{}, err
		}
		line := Line{Key: key, Values: make([]float64, len(series))}
		labels := make([]string, len(series))
		for i, s := range series {
			labels[i] = s.Label
			line.Values[i] = s.Values["value"].(float64)
		}
		if out.Labels == nil {
			out.Labels = labels
		}
		out.Values = append(out.Values, line)
	}
	return out, nil
}

type point struct {
	date  string
	value *float64
}

func timeBased(timeRange aggregation.DateOperation, points []point) ([]TimePoint, error) {
	if len(points) == 0 {
		return []TimePoint{}, nil
	}
	format, step, err := periodOf(timeRange)
	if err != nil {
		return nil, err
	}
	sums := map[string]float64{}
	days := make([]time.Time, 0, len(points))
	for _, p := range points {
		t, err := ir.ParseTime(p.date)
		if err != nil {
			return nil, errs.Validationf("invalid chart date %q", p.date)
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		days = append(days, day)
		if p.value != nil {
			sums[format(day)] += *p.value
		}
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })
	first, last := days[0], days[len(days)-1]
	if timeRange != aggregation.Day && timeRange != aggregation.Week {
		first = time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	var out []TimePoint
	seen := map[string]bool{}
	for current := first; !current.After(last); current = step(current) {
		label := format(current)
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, TimePoint{Label: label, Values: map[string]any{"value": sums[label]}})
	}
	if label := format(last); !seen[label] {
		out = append(out, TimePoint{Label: label, Values: map[string]any{"value": sums[label]}})
	}
	return out, nil
}

func periodOf(op aggregation.DateOperation) (func(time.Time) string, func(time.Time) time.Time, error) {
	switch op {
	case aggregation.Day:
		return func(t time.Time) string { return t.Format("02/01/2006") },
			func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }, nil
	case aggregation.Week:
		return func(t time.Time) string {
				year, week := t.ISOWeek()
				return fmt.Sprintf("W%02d-%d", week, year)
			},
			func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }, nil
	case aggregation.Month:
		return func(t time.Time) string { return t.Format("Jan 2006") },
			func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }, nil
	case Quarter:
		return func(t time.Time) string { return fmt.Sprintf("Q%d-%d", (int(t.Month())-1)/3+1, t.Year()) },
			func(t time.Time) time.Time { return t.AddDate(0, 3, 0) }, nil
	case aggregation.Year:
		return func(t time.Time) string { return t.Format("2006") },
			func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }, nil
	}
	return nil, nil, errs.Validationf("unknown time range %q", op)
}
