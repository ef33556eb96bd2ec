package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			status := "ok"
			if event.Error != "" {
				status = event.Error
			}
			fmt.Fprintf(&buf, "  [%d] %s %s: %s\n", event.Seq, event.Op, event.Collection, status)
		}
	}
	return buf.String()
}

// AssertionContext provides datasource access for evaluating assertions.
type AssertionContext struct {
	Ctx        context.Context
	Datasource collection.Datasource
	Caller     *collection.Caller
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Datasource == nil {
			err = fmt.Errorf("assertion[%d]: %s requires a datasource", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx, assertion, result.Trace)
			case AssertRecordCount:
				err = assertRecordCount(actx, assertion, result.Trace)
			case AssertSchemaField:
				err = assertSchemaField(actx, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertFinalState checks that the first record matching where (and filter)
// holds every expected value.
func assertFinalState(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	c, err := actx.Datasource.GetCollection(a.Collection)
	if err != nil {
		return err
	}
	tree, err := assertionTree(a)
	if err != nil {
		return err
	}

	paths := slices.Sorted(maps.Keys(a.Expect))
	p := projection.New(paths...)
	records, err := c.List(actx.Ctx, actx.Caller, filter.Filter{ConditionTree: tree}.Paginated().WithPage(&filter.Page{Limit: 1}), p)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", a.Collection, err)
	}
	if len(records) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("a %s record matching %s", a.Collection, formatWhere(a.Where)),
			Actual:   "no record found",
			Trace:    trace,
		}
	}

	for _, path := range paths {
		actual := ir.FieldValue(records[0], path)
		if !canonicalEqual(actual, a.Expect[path]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %s", a.Collection, path, canonicalString(a.Expect[path])),
				Actual:   canonicalString(actual),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertRecordCount counts records through the Count aggregation.
func assertRecordCount(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	c, err := actx.Datasource.GetCollection(a.Collection)
	if err != nil {
		return err
	}
	tree, err := assertionTree(a)
	if err != nil {
		return err
	}
	rows, err := c.Aggregate(actx.Ctx, actx.Caller, filter.Filter{ConditionTree: tree}, aggregation.Aggregation{Operation: aggregation.Count}, 0)
	if err != nil {
		return fmt.Errorf("record_count %s: %w", a.Collection, err)
	}
	actual := 0
	if len(rows) > 0 {
		if n, ok := ir.ToFloat(rows[0].Value); ok {
			actual = int(n)
		}
	}
	if actual != a.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d %s records", a.Count, a.Collection),
			Actual:   fmt.Sprintf("%d records", actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertSchemaField compares the published JSON form of a field, key by key.
func assertSchemaField(actx *AssertionContext, a Assertion) error {
	c, err := actx.Datasource.GetCollection(a.Collection)
	if err != nil {
		return err
	}
	field, ok := c.Schema().Fields[a.Field]
	if !ok {
		return &AssertionError{
			Type:     AssertSchemaField,
			Expected: fmt.Sprintf("field %s.%s", a.Collection, a.Field),
			Actual:   "field not published",
		}
	}
	raw, err := schema.MarshalField(field)
	if err != nil {
		return err
	}
	var published map[string]any
	if err := json.Unmarshal(raw, &published); err != nil {
		return err
	}

	for _, key := range slices.Sorted(maps.Keys(a.Expect)) {
		if !canonicalEqual(published[key], a.Expect[key]) {
			return &AssertionError{
				Type:     AssertSchemaField,
				Expected: fmt.Sprintf("%s.%s %s = %s", a.Collection, a.Field, key, canonicalString(a.Expect[key])),
				Actual:   canonicalString(published[key]),
			}
		}
	}
	return nil
}

// assertionTree intersects the plain filter with equality leaves built from
// where, in key order.
func assertionTree(a Assertion) (condtree.Tree, error) {
	base, err := condtree.FromPlain(a.Filter)
	if err != nil {
		return nil, err
	}
	trees := []condtree.Tree{}
	if base != nil {
		trees = append(trees, base)
	}
	for _, key := range slices.Sorted(maps.Keys(a.Where)) {
		trees = append(trees, condtree.NewLeaf(key, schema.OpEqual, a.Where[key]))
	}
	if len(trees) == 0 {
		return nil, nil
	}
	return condtree.Intersect(trees...), nil
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "any"
	}
	parts := make([]string, 0, len(where))
	for _, key := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, canonicalString(where[key])))
	}
	return strings.Join(parts, ", ")
}

// canonicalEqual compares values through their canonical JSON, so int64(3)
// equals 3 and a time equals its RFC 3339 text.
func canonicalEqual(actual, expected any) bool {
	a, errA := ir.MarshalCanonical(actual)
	b, errB := ir.MarshalCanonical(expected)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func canonicalString(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// checkExpect compares a step outcome with its expect clause. A step
// without expect must succeed.
func checkExpect(expect *Expect, ev TraceEvent, opErr error) []string {
	if expect == nil {
		if opErr != nil {
			return []string{fmt.Sprintf("unexpected error: %v", opErr)}
		}
		return nil
	}

	if expect.Error != "" {
		if ev.Error != expect.Error {
			actual := "success"
			if opErr != nil {
				actual = fmt.Sprintf("%s (%v)", ev.Error, opErr)
			}
			return []string{fmt.Sprintf("expected error %s, got %s", expect.Error, actual)}
		}
		return nil
	}
	if opErr != nil {
		return []string{fmt.Sprintf("unexpected error: %v", opErr)}
	}

	var problems []string
	if expect.Records != nil && !canonicalEqual(ev.Records, expect.Records) {
		problems = append(problems, fmt.Sprintf("records: expected %s, got %s",
			canonicalString(expect.Records), canonicalString(ev.Records)))
	}
	if expect.Results != nil && !canonicalEqual(ev.Results, expect.Results) {
		problems = append(problems, fmt.Sprintf("results: expected %s, got %s",
			canonicalString(expect.Results), canonicalString(ev.Results)))
	}
	if expect.Count != nil {
		actual := len(ev.Records)
		if ev.Results != nil {
			actual = len(ev.Results)
		}
		if actual != *expect.Count {
			problems = append(problems, fmt.Sprintf("count: expected %d, got %d", *expect.Count, actual))
		}
	}
	return problems
}
