// Package opequivalence advertises every operator a column can answer
// through equivalent trees and rewrites incoming leaves to the child's
// native operators.
package opequivalence

import (
	"context"
	"time"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Option configures the layer.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock anchors date-relative operators on now instead of the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type Collection struct {
	*decorators.Collection

	now func() time.Time
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource, opts ...Option) *decorators.Datasource[*Collection] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		e := &Collection{now: o.now}
		e.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: e.refineSchema, RefineFilter: e.refineFilter})
		return e
	})
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, f := range s.Fields {
		col, ok := f.(schema.Column)
		if !ok || len(col.FilterOperators) == 0 {
			continue
		}
		ops := make([]schema.Operator, 0, len(schema.AllOperators))
		for _, op := range schema.AllOperators {
			if found, err := condtree.HasEquivalentTree(op, col.FilterOperators, col.ColumnType); err == nil && found {
				ops = append(ops, op)
			}
		}
		col.FilterOperators = schema.NewOperatorSet(ops...)
		s.Fields[name] = col
	}
	return s
}

func (c *Collection) refineFilter(_ context.Context, _ *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if f.ConditionTree == nil {
		return f, nil
	}
	src := collection.Source(c.Child())
	now := c.now()
	tree, err := f.ConditionTree.ReplaceErr(func(l condtree.Leaf) (condtree.Tree, error) {
		col, err := schema.ColumnAt(src, l.Field)
		if err != nil {
			return nil, err
		}
		if col.FilterOperators.Has(l.Operator) {
			return l, nil
		}
		equivalent, ok, err := condtree.GetEquivalentTreeAt(l, col.FilterOperators, col.ColumnType, f.Location(), now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.Filterf("operator %s is not supported on %s.%s", l.Operator, c.Name(), l.Field)
		}
		return equivalent, nil
	})
	if err != nil {
		return f, err
	}
	return f.WithConditionTree(tree), nil
}
