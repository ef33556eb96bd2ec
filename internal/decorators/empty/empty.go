// Package empty answers queries whose condition tree provably selects no
// record without reaching the child.
package empty

import (
	"context"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

type Collection struct {
	*decorators.Collection
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		return &Collection{Collection: decorators.NewCollection(c, owner, decorators.Hooks{})}
	})
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	if ReturnsEmptySet(f.ConditionTree) {
		return []collection.Record{}, nil
	}
	return c.Collection.List(ctx, caller, f, p)
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	if ReturnsEmptySet(f.ConditionTree) {
		return nil
	}
	return c.Collection.Update(ctx, caller, f, patch)
}

func (c *Collection) Delete(ctx context.Context, caller *collection.Caller, f filter.Filter) error {
	if ReturnsEmptySet(f.ConditionTree) {
		return nil
	}
	return c.Collection.Delete(ctx, caller, f)
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	if ReturnsEmptySet(f.ConditionTree) {
		return []aggregation.Result{}, nil
	}
	return c.Collection.Aggregate(ctx, caller, f, a, limit)
}

// ReturnsEmptySet reports whether t cannot match any record. The check is
// syntactic and misses many empty trees.
func ReturnsEmptySet(t condtree.Tree) bool {
	switch n := t.(type) {
	case condtree.Leaf:
		return leafIsEmpty(n)
	case condtree.Branch:
		if n.Aggregator == condtree.Or {
			for _, c := range n.Conditions {
				if !ReturnsEmptySet(c) {
					return false
				}
			}
			return true
		}
		return andIsEmpty(n.Conditions)
	}
	return false
}

func leafIsEmpty(l condtree.Leaf) bool {
	if l.Operator != schema.OpIn {
		return false
	}
	values, _ := ir.AsSlice(l.Value)
	return len(values) == 0
}

// andIsEmpty looks for an empty child or for EQUAL/IN leaves on one field
// whose allowed values do not intersect.
func andIsEmpty(conditions []condtree.Tree) bool {
	for _, c := range conditions {
		if ReturnsEmptySet(c) {
			return true
		}
	}
	allowed := map[string][]any{}
	for _, c := range conditions {
		l, ok := c.(condtree.Leaf)
		if !ok {
			continue
		}
		var values []any
		switch l.Operator {
		case schema.OpEqual:
			values = []any{l.Value}
		case schema.OpIn:
			values, _ = ir.AsSlice(l.Value)
		default:
			continue
		}
		previous, seen := allowed[l.Field]
		if !seen {
			allowed[l.Field] = values
			continue
		}
		kept := []any{}
		for _, v := range previous {
			if ir.Contains(values, v) {
				kept = append(kept, v)
			}
		}
		allowed[l.Field] = kept
	}
	for _, values := range allowed {
		if len(values) == 0 {
			return true
		}
	}
	return false
}
