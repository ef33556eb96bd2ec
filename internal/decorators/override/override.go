// Package override lets customers replace the create, update and delete
// implementation of a collection.
package override

import (
	"context"
	"maps"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
)

// CreateContext is passed to create handlers. Data is a copy.
type CreateContext struct {
	*decorators.CustomizationContext
	Data []collection.Record
}

// UpdateContext is passed to update handlers. Patch is a copy.
type UpdateContext struct {
	*decorators.CustomizationContext
	Filter filter.Filter
	Patch  collection.Record
}

// DeleteContext is passed to delete handlers.
type DeleteContext struct {
	*decorators.CustomizationContext
	Filter filter.Filter
}

type (
	CreateHandler func(ctx context.Context, cc *CreateContext) ([]collection.Record, error)
	UpdateHandler func(ctx context.Context, cc *UpdateContext) error
	DeleteHandler func(ctx context.Context, cc *DeleteContext) error
)

type Collection struct {
	*decorators.Collection

	create CreateHandler
	update UpdateHandler
	delete DeleteHandler
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		return &Collection{Collection: decorators.NewCollection(c, owner, decorators.Hooks{})}
	})
}

func (c *Collection) AddCreateHandler(h CreateHandler) { c.create = h }
func (c *Collection) AddUpdateHandler(h UpdateHandler) { c.update = h }
func (c *Collection) AddDeleteHandler(h DeleteHandler) { c.delete = h }

func (c *Collection) context(caller *collection.Caller) *decorators.CustomizationContext {
	return decorators.NewContext(c.Child(), caller)
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	if c.create == nil {
		return c.Collection.Create(ctx, caller, records)
	}
	data := make([]collection.Record, len(records))
	for i, r := range records {
		data[i] = ir.CloneRecord(r)
	}
	return c.create(ctx, &CreateContext{CustomizationContext: c.context(caller), Data: data})
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	if c.update == nil {
		return c.Collection.Update(ctx, caller, f, patch)
	}
	return c.update(ctx, &UpdateContext{CustomizationContext: c.context(caller), Filter: f, Patch: maps.Clone(patch)})
}

func (c *Collection) Delete(ctx context.Context, caller *collection.Caller, f filter.Filter) error {
	if c.delete == nil {
		return c.Collection.Delete(ctx, caller, f)
	}
	return c.delete(ctx, &DeleteContext{CustomizationContext: c.context(caller), Filter: f})
}
