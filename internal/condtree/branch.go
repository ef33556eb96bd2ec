package condtree

import (
	"strings"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/projection"
)

// Branch combines children with AND or OR.
type Branch struct {
	Aggregator Aggregator
	Conditions []Tree
}

func (Branch) isTree() {}

func (b Branch) Projection() projection.Projection {
	out := projection.Projection{}
	for _, c := range b.Conditions {
		out = out.Union(c.Projection())
	}
	return out
}

// Inverse swaps the aggregator and inverts every child.
func (b Branch) Inverse() (Tree, error) {
	agg := Or
	if b.Aggregator == Or {
		agg = And
	}
	conditions := make([]Tree, len(b.Conditions))
	for i, c := range b.Conditions {
		inv, err := c.Inverse()
		if err != nil {
			return nil, err
		}
		conditions[i] = inv
	}
	return Branch{Aggregator: agg, Conditions: conditions}, nil
}

func (b Branch) Match(record map[string]any, ev Evaluation) (bool, error) {
	for _, c := range b.Conditions {
		ok, err := c.Match(record, ev)
		if err != nil {
			return false, err
		}
		if b.Aggregator == Or && ok {
			return true, nil
		}
		if b.Aggregator == And && !ok {
			return false, nil
		}
	}
	return b.Aggregator == And, nil
}

// Replace rewrites children. A child replaced by nil (match all) is dropped
// from an AND and turns an OR into match all.
func (b Branch) Replace(fn func(Leaf) Tree) Tree {
	t, _ := b.ReplaceErr(func(l Leaf) (Tree, error) { return fn(l), nil })
	return t
}

func (b Branch) ReplaceErr(fn func(Leaf) (Tree, error)) (Tree, error) {
	conditions := make([]Tree, 0, len(b.Conditions))
	for _, c := range b.Conditions {
		replaced, err := c.ReplaceErr(fn)
		if err != nil {
			return nil, err
		}
		if replaced == nil {
			if b.Aggregator == Or {
				return nil, nil
			}
			continue
		}
		conditions = append(conditions, replaced)
	}
	if b.Aggregator == And && len(conditions) == 0 {
		return nil, nil
	}
	return Branch{Aggregator: b.Aggregator, Conditions: conditions}, nil
}

func (b Branch) ForEachLeaf(fn func(Leaf)) {
	for _, c := range b.Conditions {
		c.ForEachLeaf(fn)
	}
}

func (b Branch) EveryLeaf(fn func(Leaf) bool) bool {
	for _, c := range b.Conditions {
		if !c.EveryLeaf(fn) {
			return false
		}
	}
	return true
}

func (b Branch) SomeLeaf(fn func(Leaf) bool) bool {
	for _, c := range b.Conditions {
		if c.SomeLeaf(fn) {
			return true
		}
	}
	return false
}

func (b Branch) Nest(prefix string) Tree {
	if prefix == "" {
		return b
	}
	return b.Replace(func(l Leaf) Tree { return l.Nest(prefix) })
}

// Unnest requires every leaf to share exactly one relation prefix.
func (b Branch) Unnest() (Tree, error) {
	if len(b.Conditions) == 0 {
		return b, nil
	}
	prefix := ""
	consistent := true
	b.ForEachLeaf(func(l Leaf) {
		head, _, ok := strings.Cut(l.Field, ":")
		switch {
		case !ok:
			consistent = false
		case prefix == "":
			prefix = head
		case prefix != head:
			consistent = false
		}
	})
	if !consistent || prefix == "" {
		return nil, errs.Filterf("cannot unnest condition tree")
	}
	return b.ReplaceErr(func(l Leaf) (Tree, error) { return l.Unnest() })
}
