// Package segment adds named, computed condition trees that callers select
// by name on a filter.
package segment

import (
	"context"
	"slices"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Definition computes the tree of a segment for a caller.
type Definition func(ctx context.Context, cc *decorators.CustomizationContext) (condtree.Tree, error)

// Static returns a definition always yielding t.
func Static(t condtree.Tree) Definition {
	return func(context.Context, *decorators.CustomizationContext) (condtree.Tree, error) { return t, nil }
}

type Collection struct {
	*decorators.Collection

	names    []string
	segments map[string]Definition
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		s := &Collection{segments: map[string]Definition{}}
		s.Collection = decorators.NewCollection(c, owner, decorators.Hooks{
			RefineSchema: s.refineSchema,
			RefineFilter: s.refineFilter,
		})
		return s
	})
}

// AddSegment registers a segment. Names are unique per collection.
func (c *Collection) AddSegment(name string, def Definition) error {
	if _, ok := c.segments[name]; ok || slices.Contains(c.Child().Schema().Segments, name) {
		return errs.Configurationf("segment %q already defined in collection %q", name, c.Name())
	}
	c.names = append(c.names, name)
	c.segments[name] = def
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	s.Segments = append(s.Segments, c.names...)
	return s
}

func (c *Collection) refineFilter(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	def, ok := c.segments[f.Segment]
	if f.Segment == "" || !ok {
		return f, nil
	}
	tree, err := def(ctx, decorators.NewContext(c, caller))
	if err != nil {
		return f, err
	}
	if tree != nil {
		if err := validateTree(c, tree); err != nil {
			return f, err
		}
	}
	return f.WithConditionTree(condtree.Intersect(tree, f.ConditionTree)).WithSegment(""), nil
}

func validateTree(c collection.Collection, t condtree.Tree) error {
	src := collection.Source(c)
	var err error
	t.SomeLeaf(func(l condtree.Leaf) bool {
		var col schema.Column
		col, err = schema.ColumnAt(src, l.Field)
		if err == nil && !col.FilterOperators.Has(l.Operator) {
			err = errs.Filterf("the given operator %q is not supported by the column %q", l.Operator, l.Field)
		}
		if err == nil {
			err = schema.ValidateOperatorValue(l.Field, col, l.Operator, l.Value)
		}
		return err != nil
	})
	return err
}
