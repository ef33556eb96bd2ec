package condtree

import (
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

// MatchAll is the nil tree.
var MatchAll Tree

// MatchNone returns an OR branch without children.
func MatchNone() Tree {
	return Branch{Aggregator: Or, Conditions: []Tree{}}
}

// IsMatchNone reports whether t is the MatchNone sentinel.
func IsMatchNone(t Tree) bool {
	b, ok := t.(Branch)
	return ok && b.Aggregator == Or && len(b.Conditions) == 0
}

// Union ORs trees together. Nil trees are skipped, nested OR branches are
// flattened and a single remaining child is returned as is.
func Union(trees ...Tree) Tree {
	return group(Or, trees)
}

// Intersect ANDs trees together with the same flattening rules as Union.
// The intersection of nothing is MatchAll.
func Intersect(trees ...Tree) Tree {
	t := group(And, trees)
	if b, ok := t.(Branch); ok && len(b.Conditions) == 0 {
		return nil
	}
	return t
}

func group(agg Aggregator, trees []Tree) Tree {
	conditions := make([]Tree, 0, len(trees))
	for _, t := range trees {
		if t == nil {
			if agg == Or {
				return nil
			}
			continue
		}
		if b, ok := t.(Branch); ok && b.Aggregator == agg {
			conditions = append(conditions, b.Conditions...)
			continue
		}
		conditions = append(conditions, t)
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return Branch{Aggregator: agg, Conditions: conditions}
}

// MatchRecords builds a tree selecting records by primary key.
func MatchRecords(s schema.CollectionSchema, records []map[string]any) (Tree, error) {
	pks := schema.PrimaryKeys(s)
	ids := make([][]any, 0, len(records))
	for _, r := range records {
		id := make([]any, len(pks))
		for i, pk := range pks {
			v, ok := r[pk]
			if !ok {
				return nil, errs.Configurationf("missing primary key %q in record", pk)
			}
			id[i] = v
		}
		ids = append(ids, id)
	}
	return MatchIDs(s, ids)
}

// MatchIDs builds a tree selecting composite ids. Every primary key must
// support EQUAL or IN.
func MatchIDs(s schema.CollectionSchema, ids [][]any) (Tree, error) {
	pks := schema.PrimaryKeys(s)
	if len(pks) == 0 {
		return nil, errs.Configurationf("collection must have at least one primary key")
	}
	for _, pk := range pks {
		c := s.Fields[pk].(schema.Column)
		if !c.FilterOperators.Has(schema.OpEqual) && !c.FilterOperators.Has(schema.OpIn) {
			return nil, errs.Configurationf("field %q must support operators: [equal, in]", pk)
		}
	}
	return matchFields(pks, ids), nil
}

func matchFields(fields []string, values [][]any) Tree {
	if len(values) == 0 {
		return MatchNone()
	}
	if len(fields) == 1 {
		column := make([]any, 0, len(values))
		for _, v := range values {
			if len(v) > 0 {
				column = append(column, v[0])
			}
		}
		column = ir.Dedup(column)
		if len(column) == 1 {
			return NewLeaf(fields[0], schema.OpEqual, column[0])
		}
		return NewLeaf(fields[0], schema.OpIn, column)
	}

	// Group by the first key, preserving first appearance order.
	var order []any
	rest := map[string][][]any{}
	for _, v := range values {
		key := ir.MustValueKey(v[0])
		if _, ok := rest[key]; !ok {
			order = append(order, v[0])
		}
		rest[key] = append(rest[key], v[1:])
	}
	branches := make([]Tree, 0, len(order))
	for _, first := range order {
		leaf := NewLeaf(fields[0], schema.OpEqual, first)
		branches = append(branches, Intersect(leaf, matchFields(fields[1:], rest[ir.MustValueKey(first)])))
	}
	return Union(branches...)
}
