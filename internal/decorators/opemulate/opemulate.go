// Package opemulate adds filter operators to columns, either through a
// customer-provided replacement tree or by filtering every record in memory.
package opemulate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Definition returns the tree replacing a leaf with the given value. A nil
// tree falls back to in-memory filtering.
type Definition func(ctx context.Context, value any, cc *decorators.CustomizationContext) (condtree.Tree, error)

// DefaultMaxRows bounds in-memory filtering.
const DefaultMaxRows = 10000

// Option configures the layer.
type Option func(*options)

type options struct {
	maxRows int
}

// WithMaxRows sets how many records in-memory filtering may load. Zero
// removes the ceiling.
func WithMaxRows(n int) Option {
	return func(o *options) { o.maxRows = n }
}

type Collection struct {
	*decorators.Collection

	ds      *decorators.Datasource[*Collection]
	maxRows int
	fields  map[string]map[schema.Operator]Definition
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource, opts ...Option) *decorators.Datasource[*Collection] {
	o := options{maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(&o)
	}
	var ds *decorators.Datasource[*Collection]
	ds = decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		e := &Collection{maxRows: o.maxRows, fields: map[string]map[schema.Operator]Definition{}}
		e.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: e.refineSchema, RefineFilter: e.refineFilter})
		return e
	})
	ds.Each(func(e *Collection) { e.ds = ds })
	return ds
}

// EmulateFieldOperator answers op on name by filtering in memory.
func (c *Collection) EmulateFieldOperator(name string, op schema.Operator) error {
	return c.ReplaceFieldOperator(name, op, nil)
}

// EmulateFieldFiltering emulates every operator the column type allows that
// the child does not support.
func (c *Collection) EmulateFieldFiltering(name string) error {
	col, err := c.column(name)
	if err != nil {
		return err
	}
	for _, op := range schema.AllowedOperators(col.ColumnType).Sorted() {
		if col.FilterOperators.Has(op) {
			continue
		}
		if err := c.EmulateFieldOperator(name, op); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceFieldOperator answers op on name with the tree def returns.
func (c *Collection) ReplaceFieldOperator(name string, op schema.Operator, def Definition) error {
	child := c.Child().Schema()
	for _, pk := range schema.PrimaryKeys(child) {
		col := child.Fields[pk].(schema.Column)
		if !col.FilterOperators.HasAll(schema.OpEqual, schema.OpIn) {
			return errs.Configurationf("cannot override operators on collection %q: the primary key columns must support 'equal' and 'in' operators", c.Name())
		}
	}
	col, err := c.column(name)
	if err != nil {
		return err
	}
	if !schema.AllowedOperators(col.ColumnType).Has(op) {
		return errs.Configurationf("cannot replace operator %q on field type %q for field %q", op, col.ColumnType, name)
	}
	if c.fields[name] == nil {
		c.fields[name] = map[schema.Operator]Definition{}
	}
	c.fields[name][op] = def
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) column(name string) (schema.Column, error) {
	f, ok := c.Child().Schema().Fields[name]
	if !ok {
		return schema.Column{}, errs.NotFoundf("no such field %s.%s", c.Name(), name)
	}
	col, isCol := f.(schema.Column)
	if !isCol {
		return schema.Column{}, errs.Configurationf("cannot replace operator for relation on field %q", name)
	}
	return col, nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, ops := range c.fields {
		col, ok := s.Fields[name].(schema.Column)
		if !ok {
			continue
		}
		extra := make([]schema.Operator, 0, len(ops))
		for op := range ops {
			extra = append(extra, op)
		}
		col.FilterOperators = col.FilterOperators.With(extra...)
		s.Fields[name] = col
	}
	return s
}

func (c *Collection) refineFilter(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if f.ConditionTree == nil {
		return f, nil
	}
	tree, err := f.ConditionTree.ReplaceErr(func(l condtree.Leaf) (condtree.Tree, error) {
		return c.replaceLeaf(ctx, caller, l, f.Location(), nil)
	})
	if err != nil {
		return f, err
	}
	return f.WithConditionTree(tree), nil
}

func (c *Collection) replaceLeaf(ctx context.Context, caller *collection.Caller, l condtree.Leaf, tz *time.Location, chain []string) (condtree.Tree, error) {
	head, rest := schema.SplitPath(l.Field)
	if rest != "" {
		fc, ok := schema.ForeignCollection(c.Child().Schema().Fields[head])
		if !ok {
			return nil, errs.NotFoundf("no such relation %s.%s", c.Name(), head)
		}
		foreign, err := c.ds.Decorated(fc)
		if err != nil {
			return nil, err
		}
		sub, err := foreign.replaceLeaf(ctx, caller, l.ReplaceField(rest), tz, chain)
		if err != nil {
			return nil, err
		}
		return sub.Nest(head), nil
	}
	if _, emulated := c.fields[l.Field][l.Operator]; !emulated {
		return l, nil
	}
	return c.computeEquivalent(ctx, caller, l, tz, chain)
}

func (c *Collection) computeEquivalent(ctx context.Context, caller *collection.Caller, l condtree.Leaf, tz *time.Location, chain []string) (condtree.Tree, error) {
	if def := c.fields[l.Field][l.Operator]; def != nil {
		id := fmt.Sprintf("%s.%s[%s]", c.Name(), l.Field, l.Operator)
		next := append(slices.Clone(chain), id)
		if slices.Contains(chain, id) {
			return nil, errs.Cyclef("operator replacement cycle: %s", strings.Join(next, " -> "))
		}
		equivalent, err := def(ctx, l.Value, decorators.NewContext(c, caller))
		if err != nil {
			return nil, err
		}
		if equivalent != nil {
			replaced, err := equivalent.ReplaceErr(func(sub condtree.Leaf) (condtree.Tree, error) {
				return c.replaceLeaf(ctx, caller, sub, tz, next)
			})
			if err != nil {
				return nil, err
			}
			if err := c.validate(replaced); err != nil {
				return nil, err
			}
			return replaced, nil
		}
	}
	return c.bruteForce(ctx, caller, l, tz)
}

// validate checks a replacement tree against the child schema.
func (c *Collection) validate(t condtree.Tree) error {
	src := collection.Source(c.Child())
	var err error
	t.ForEachLeaf(func(l condtree.Leaf) {
		if err != nil {
			return
		}
		col, e := schema.ColumnAt(src, l.Field)
		if e != nil {
			err = e
			return
		}
		if !col.FilterOperators.Has(l.Operator) {
			err = errs.Filterf("the given operator %q is not supported by the column %q", l.Operator, l.Field)
		}
	})
	return err
}

// bruteForce lists every record and keeps those matching l.
func (c *Collection) bruteForce(ctx context.Context, caller *collection.Caller, l condtree.Leaf, tz *time.Location) (condtree.Tree, error) {
	src := collection.Source(c)
	p, err := l.Projection().WithPks(src)
	if err != nil {
		return nil, err
	}
	all := filter.PaginatedFilter{}
	if c.maxRows > 0 {
		all = all.WithPage(&filter.Page{Limit: c.maxRows + 1})
	}
	records, err := c.List(ctx, caller, all, p)
	if err != nil {
		return nil, err
	}
	if c.maxRows > 0 && len(records) > c.maxRows {
		slog.Warn("emulated filter exceeds row ceiling",
			"collection", c.Name(), "field", l.Field, "operator", l.Operator, "max_rows", c.maxRows)
		return nil, errs.Unprocessablef("cannot emulate operator %q on %s.%s: more than %d records", l.Operator, c.Name(), l.Field, c.maxRows)
	}
	matching, err := condtree.Filter(l, records, condtree.Evaluation{Source: src, Location: tz})
	if err != nil {
		return nil, err
	}
	slog.Debug("emulated filter", "collection", c.Name(), "field", l.Field, "operator", l.Operator,
		"scanned", len(records), "matched", len(matching))
	return condtree.MatchRecords(c.Schema(), matching)
}
