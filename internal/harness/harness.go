package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/manifest"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/stack"
	"github.com/roach88/dstoolkit/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a pinned clock against a fresh datasource.
type Harness struct {
	ds     collection.Datasource
	caller *collection.Caller
	clock  *testutil.FixedClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario builds its manifest into a fresh datasource: the memory
// backend by default, an in-memory SQLite database for the sqlite backend.
//
// Execution flow:
// 1. Load and build the manifest with the scenario clock
// 2. Execute steps in order, validating expect clauses
// 3. Evaluate assertions against the final state
//
// The returned error reports a scenario that could not run at all. Failed
// expectations are reported through Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	m, err := manifest.LoadFile(scenario.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	nowText := scenario.Now
	if nowText == "" {
		nowText = DefaultNow
	}
	now, err := time.Parse(time.RFC3339, nowText)
	if err != nil {
		return nil, fmt.Errorf("invalid now: %w", err)
	}
	clock := testutil.NewFixedClock(now)

	built, err := m.Build(ctx, manifest.Options{
		Backend: manifest.Backend(scenario.Backend),
		Stack:   []stack.Option{stack.WithClock(clock.Now)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}
	defer built.Close()

	caller := &collection.Caller{ID: 1, Email: "scenario@dstoolkit.test", Timezone: time.UTC}
	if scenario.Timezone != "" {
		loc, err := time.LoadLocation(scenario.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
		caller.Timezone = loc
	}

	h := &Harness{
		ds:     built.Datasource(),
		caller: caller,
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Datasource: h.ds, Caller: caller}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeStep runs one step, records it in the trace and checks its expect
// clause. Datasource errors are outcomes, not failures to run.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	c, err := h.ds.GetCollection(step.Collection)
	if err != nil {
		return err
	}
	f, err := h.filter(step)
	if err != nil {
		return err
	}

	ev := TraceEvent{Op: step.Op, Collection: step.Collection, Args: stepArgs(step)}
	var (
		records []map[string]any
		results []map[string]any
		opErr   error
	)
	switch step.Op {
	case OpList:
		pf := f.Paginated()
		if len(step.Sort) > 0 {
			pf = pf.WithSort(step.Sort)
		}
		if step.Page != nil {
			pf = pf.WithPage(step.Page)
		}
		p := projection.New(step.Projection...)
		if len(p) == 0 {
			p = defaultProjection(c.Schema())
		}
		records, opErr = c.List(ctx, h.caller, pf, p)
		ev.Records = nonNil(records)

	case OpCreate:
		records, opErr = c.Create(ctx, h.caller, step.Records)
		ev.Records = nonNil(records)

	case OpUpdate:
		opErr = c.Update(ctx, h.caller, f, step.Patch)

	case OpDelete:
		opErr = c.Delete(ctx, h.caller, f)

	case OpAggregate:
		var rows []aggregation.Result
		rows, opErr = c.Aggregate(ctx, h.caller, f, *step.Aggregation, step.Limit)
		results = make([]map[string]any, len(rows))
		for i, row := range rows {
			results[i] = map[string]any{"value": row.Value, "group": row.Group}
		}
		ev.Results = results
	}

	if opErr != nil {
		ev.Error = errorCode(opErr)
		ev.Records, ev.Results = nil, nil
		h.logger.Info("step failed", "step", index, "op", step.Op, "error", opErr)
	} else {
		h.logger.Info("step completed", "step", index, "op", step.Op, "collection", step.Collection)
	}
	result.AddTrace(ev)

	for _, msg := range checkExpect(step.Expect, ev, opErr) {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", index, step.Op, step.Collection, msg))
	}
	return nil
}

func (h *Harness) filter(step Step) (filter.Filter, error) {
	tree, err := condtree.FromPlain(step.Filter)
	if err != nil {
		return filter.Filter{}, err
	}
	f := filter.Filter{ConditionTree: tree, Timezone: h.caller.Location()}
	if step.Search != "" {
		f = f.WithSearch(step.Search, false)
	}
	if step.Segment != "" {
		f = f.WithSegment(step.Segment)
	}
	return f, nil
}

// defaultProjection selects every column of s.
func defaultProjection(s schema.CollectionSchema) projection.Projection {
	var names []string
	for _, name := range s.FieldNames() {
		if s.Fields[name].FieldType() == schema.FieldColumn {
			names = append(names, name)
		}
	}
	return projection.New(names...)
}

// stepArgs is the trace form of a step's inputs.
func stepArgs(step Step) map[string]any {
	args := map[string]any{}
	if step.Filter != nil {
		args["filter"] = step.Filter
	}
	if step.Search != "" {
		args["search"] = step.Search
	}
	if step.Segment != "" {
		args["segment"] = step.Segment
	}
	if len(step.Sort) > 0 {
		clauses := make([]any, len(step.Sort))
		for i, c := range step.Sort {
			clauses[i] = map[string]any{"field": c.Field, "ascending": c.Ascending}
		}
		args["sort"] = clauses
	}
	if step.Page != nil {
		args["page"] = map[string]any{"skip": step.Page.Skip, "limit": step.Page.Limit}
	}
	if len(step.Projection) > 0 {
		args["projection"] = slices.Clone(step.Projection)
	}
	if len(step.Records) > 0 {
		args["records"] = step.Records
	}
	if step.Patch != nil {
		args["patch"] = step.Patch
	}
	if step.Aggregation != nil {
		a := map[string]any{"operation": string(step.Aggregation.Operation)}
		if step.Aggregation.Field != "" {
			a["field"] = step.Aggregation.Field
		}
		if len(step.Aggregation.Groups) > 0 {
			groups := make([]any, len(step.Aggregation.Groups))
			for i, g := range step.Aggregation.Groups {
				group := map[string]any{"field": g.Field}
				if g.Operation != "" {
					group["operation"] = string(g.Operation)
				}
				groups[i] = group
			}
			a["groups"] = groups
		}
		args["aggregation"] = a
	}
	if step.Limit > 0 {
		args["limit"] = step.Limit
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

func errorCode(err error) string {
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return "INTERNAL"
}

func nonNil(records []map[string]any) []map[string]any {
	if records == nil {
		return []map[string]any{}
	}
	return records
}
