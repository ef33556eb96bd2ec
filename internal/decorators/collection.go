package decorators

import (
	"context"
	"sync"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Hooks are the overridable steps of a decorator. Nil hooks are identity.
type Hooks struct {
	// RefineSchema derives the advertised schema from the child's. It
	// receives a clone and may modify it.
	RefineSchema func(child schema.CollectionSchema) schema.CollectionSchema

	// RefineFilter rewrites or rejects the filter of every delegated call.
	// Non-list calls receive a filter without sort or page.
	RefineFilter func(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error)
}

// Collection is the base collection decorator. Layers embed it and shadow
// the methods whose behaviour they change.
type Collection struct {
	child      collection.Collection
	datasource collection.Datasource
	hooks      Hooks

	mu        sync.Mutex
	cached    *schema.CollectionSchema
	listeners []func()
}

// NewCollection wraps child. ds is the decorated datasource the wrapper
// belongs to; sibling lookups go through it.
func NewCollection(child collection.Collection, ds collection.Datasource, hooks Hooks) *Collection {
	c := &Collection{child: child, datasource: ds, hooks: hooks}
	if n, ok := child.(collection.SchemaNotifier); ok {
		n.OnSchemaDirty(c.MarkSchemaAsDirty)
	}
	return c
}

// Child returns the wrapped collection.
func (c *Collection) Child() collection.Collection { return c.child }

func (c *Collection) Name() string                      { return c.child.Name() }
func (c *Collection) Datasource() collection.Datasource { return c.datasource }

// Schema returns the memoized refined schema.
func (c *Collection) Schema() schema.CollectionSchema {
	c.mu.Lock()
	cached := c.cached
	c.mu.Unlock()
	if cached != nil {
		return *cached
	}

	s := c.child.Schema()
	if c.hooks.RefineSchema != nil {
		s = c.hooks.RefineSchema(s.Clone())
	}

	c.mu.Lock()
	c.cached = &s
	c.mu.Unlock()
	return s
}

// MarkSchemaAsDirty drops the memoized schema and notifies the decorators
// stacked on top of this one.
func (c *Collection) MarkSchemaAsDirty() {
	c.mu.Lock()
	c.cached = nil
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnSchemaDirty registers fn to run whenever this schema is invalidated.
func (c *Collection) OnSchemaDirty(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// RefineFilter applies the filter hook.
func (c *Collection) RefineFilter(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if c.hooks.RefineFilter == nil {
		return f, nil
	}
	return c.hooks.RefineFilter(ctx, caller, f)
}

// RefineBaseFilter applies the filter hook to a filter without pagination.
func (c *Collection) RefineBaseFilter(ctx context.Context, caller *collection.Caller, f filter.Filter) (filter.Filter, error) {
	refined, err := c.RefineFilter(ctx, caller, f.Paginated())
	if err != nil {
		return filter.Filter{}, err
	}
	return refined.Filter, nil
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	refined, err := c.RefineFilter(ctx, caller, f)
	if err != nil {
		return nil, err
	}
	return c.child.List(ctx, caller, refined, p)
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	return c.child.Create(ctx, caller, records)
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	refined, err := c.RefineBaseFilter(ctx, caller, f)
	if err != nil {
		return err
	}
	return c.child.Update(ctx, caller, refined, patch)
}

func (c *Collection) Delete(ctx context.Context, caller *collection.Caller, f filter.Filter) error {
	refined, err := c.RefineBaseFilter(ctx, caller, f)
	if err != nil {
		return err
	}
	return c.child.Delete(ctx, caller, refined)
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	refined, err := c.RefineBaseFilter(ctx, caller, f)
	if err != nil {
		return nil, err
	}
	return c.child.Aggregate(ctx, caller, refined, a, limit)
}

func (c *Collection) Execute(ctx context.Context, caller *collection.Caller, action string, data collection.Record, f filter.Filter) (collection.ActionResult, error) {
	refined, err := c.RefineBaseFilter(ctx, caller, f)
	if err != nil {
		return collection.ActionResult{}, err
	}
	return c.child.Execute(ctx, caller, action, data, refined)
}

func (c *Collection) GetForm(ctx context.Context, caller *collection.Caller, action string, data collection.Record, f filter.Filter) ([]collection.ActionField, error) {
	refined, err := c.RefineBaseFilter(ctx, caller, f)
	if err != nil {
		return nil, err
	}
	return c.child.GetForm(ctx, caller, action, data, refined)
}

func (c *Collection) RenderChart(ctx context.Context, caller *collection.Caller, chart string, recordID []any) (collection.Chart, error) {
	return c.child.RenderChart(ctx, caller, chart, recordID)
}
