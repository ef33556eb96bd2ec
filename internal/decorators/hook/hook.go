// Package hook runs customer callbacks before and after every read and
// write of a collection.
package hook

import (
	"context"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
)

// Position says whether a hook runs before or after the call.
type Position string

const (
	Before Position = "Before"
	After  Position = "After"
)

// Context is embedded in every hook context. Returning one of the Throw*
// errors from a hook aborts the call.
type Context struct {
	*decorators.CustomizationContext
}

func (Context) ThrowValidationError(format string, args ...any) error {
	return errs.Validationf(format, args...)
}

func (Context) ThrowForbiddenError(format string, args ...any) error {
	return errs.Forbiddenf(format, args...)
}

func (Context) ThrowError(format string, args ...any) error {
	return errs.Unprocessablef(format, args...)
}

type ListContext struct {
	Context
	Filter     filter.PaginatedFilter
	Projection projection.Projection
	// Records is set for After hooks.
	Records []collection.Record
}

type CreateContext struct {
	Context
	Data []collection.Record
	// Records is set for After hooks.
	Records []collection.Record
}

type UpdateContext struct {
	Context
	Filter filter.Filter
	Patch  collection.Record
}

type DeleteContext struct {
	Context
	Filter filter.Filter
}

type AggregateContext struct {
	Context
	Filter      filter.Filter
	Aggregation aggregation.Aggregation
	Limit       int
	// Results is set for After hooks.
	Results []aggregation.Result
}

// Hook is a callback registered for one operation.
type Hook[C any] func(ctx context.Context, hc C) error

type chain[C any] struct {
	before, after []Hook[C]
}

func (h *chain[C]) add(pos Position, fn Hook[C]) error {
	switch pos {
	case Before:
		h.before = append(h.before, fn)
	case After:
		h.after = append(h.after, fn)
	default:
		return errs.Configurationf("invalid hook position %q", pos)
	}
	return nil
}

func (h *chain[C]) run(ctx context.Context, pos Position, hc C) error {
	hooks := h.before
	if pos == After {
		hooks = h.after
	}
	for _, fn := range hooks {
		if err := fn(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

type Collection struct {
	*decorators.Collection

	list      chain[*ListContext]
	create    chain[*CreateContext]
	update    chain[*UpdateContext]
	delete    chain[*DeleteContext]
	aggregate chain[*AggregateContext]
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		return &Collection{Collection: decorators.NewCollection(c, owner, decorators.Hooks{})}
	})
}

func (c *Collection) AddListHook(pos Position, fn Hook[*ListContext]) error {
	return c.list.add(pos, fn)
}

func (c *Collection) AddCreateHook(pos Position, fn Hook[*CreateContext]) error {
	return c.create.add(pos, fn)
}

func (c *Collection) AddUpdateHook(pos Position, fn Hook[*UpdateContext]) error {
	return c.update.add(pos, fn)
}

func (c *Collection) AddDeleteHook(pos Position, fn Hook[*DeleteContext]) error {
	return c.delete.add(pos, fn)
}

func (c *Collection) AddAggregateHook(pos Position, fn Hook[*AggregateContext]) error {
	return c.aggregate.add(pos, fn)
}

func (c *Collection) context(caller *collection.Caller) Context {
	return Context{CustomizationContext: decorators.NewContext(c, caller)}
}

func cloneRecords(records []collection.Record) []collection.Record {
	out := make([]collection.Record, len(records))
	for i, r := range records {
		out[i] = ir.CloneRecord(r)
	}
	return out
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	hc := &ListContext{Context: c.context(caller), Filter: f, Projection: p}
	if err := c.list.run(ctx, Before, hc); err != nil {
		return nil, err
	}
	records, err := c.Collection.List(ctx, caller, f, p)
	if err != nil {
		return nil, err
	}
	hc.Records = cloneRecords(records)
	if err := c.list.run(ctx, After, hc); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, data []collection.Record) ([]collection.Record, error) {
	hc := &CreateContext{Context: c.context(caller), Data: cloneRecords(data)}
	if err := c.create.run(ctx, Before, hc); err != nil {
		return nil, err
	}
	records, err := c.Collection.Create(ctx, caller, data)
	if err != nil {
		return nil, err
	}
	hc.Records = cloneRecords(records)
	if err := c.create.run(ctx, After, hc); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	hc := &UpdateContext{Context: c.context(caller), Filter: f, Patch: ir.CloneRecord(patch)}
	if err := c.update.run(ctx, Before, hc); err != nil {
		return err
	}
	if err := c.Collection.Update(ctx, caller, f, patch); err != nil {
		return err
	}
	return c.update.run(ctx, After, hc)
}

func (c *Collection) Delete(ctx context.Context, caller *collection.Caller, f filter.Filter) error {
	hc := &DeleteContext{Context: c.context(caller), Filter: f}
	if err := c.delete.run(ctx, Before, hc); err != nil {
		return err
	}
	if err := c.Collection.Delete(ctx, caller, f); err != nil {
		return err
	}
	return c.delete.run(ctx, After, hc)
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	hc := &AggregateContext{Context: c.context(caller), Filter: f, Aggregation: a, Limit: limit}
	if err := c.aggregate.run(ctx, Before, hc); err != nil {
		return nil, err
	}
	results, err := c.Collection.Aggregate(ctx, caller, f, a, limit)
	if err != nil {
		return nil, err
	}
	hc.Results = results
	if err := c.aggregate.run(ctx, After, hc); err != nil {
		return nil, err
	}
	return results, nil
}
