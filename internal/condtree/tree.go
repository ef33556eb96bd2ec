package condtree

import (
	"time"

	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Aggregator combines the children of a Branch.
type Aggregator string

const (
	And Aggregator = "and"
	Or  Aggregator = "or"
)

// Tree is a condition tree node. Sealed: only Leaf and Branch implement it.
type Tree interface {
	// Projection lists every field the tree reads.
	Projection() projection.Projection

	// Inverse returns the negated tree.
	Inverse() (Tree, error)

	// Match evaluates the tree against an in-memory record.
	Match(record map[string]any, ev Evaluation) (bool, error)

	// Replace rewrites every leaf bottom-up.
	Replace(fn func(Leaf) Tree) Tree

	// ReplaceErr is Replace for fallible rewrites.
	ReplaceErr(fn func(Leaf) (Tree, error)) (Tree, error)

	// ForEachLeaf calls fn on every leaf in order.
	ForEachLeaf(fn func(Leaf))

	// EveryLeaf reports whether fn holds for all leaves.
	EveryLeaf(fn func(Leaf) bool) bool

	// SomeLeaf reports whether fn holds for at least one leaf.
	SomeLeaf(fn func(Leaf) bool) bool

	// Nest prefixes every field with "prefix:".
	Nest(prefix string) Tree

	// Unnest strips the relation prefix shared by every field.
	Unnest() (Tree, error)

	isTree()
}

// Evaluation carries what in-memory matching needs besides the record.
type Evaluation struct {
	// Source resolves column types for date-relative operators. May be nil
	// when the tree has none.
	Source schema.Source

	// Location is the caller's timezone. Nil means UTC.
	Location *time.Location

	// Now anchors date-relative operators. Zero means time.Now().
	Now time.Time
}

func (ev Evaluation) location() *time.Location {
	if ev.Location == nil {
		return time.UTC
	}
	return ev.Location
}

func (ev Evaluation) now() time.Time {
	if ev.Now.IsZero() {
		return time.Now()
	}
	return ev.Now
}

// Filter keeps the records matching t. A nil tree keeps everything.
func Filter(t Tree, records []map[string]any, ev Evaluation) ([]map[string]any, error) {
	if t == nil {
		return records, nil
	}
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		ok, err := t.Match(r, ev)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ProjectionOf returns the fields read by t, or an empty projection for nil.
func ProjectionOf(t Tree) projection.Projection {
	if t == nil {
		return projection.Projection{}
	}
	return t.Projection()
}

// Equal compares two trees structurally, with loose value equality.
func Equal(a, b Tree) bool {
	switch at := a.(type) {
	case nil:
		return b == nil
	case Leaf:
		bt, ok := b.(Leaf)
		return ok && at.equal(bt)
	case Branch:
		bt, ok := b.(Branch)
		if !ok || at.Aggregator != bt.Aggregator || len(at.Conditions) != len(bt.Conditions) {
			return false
		}
		for i := range at.Conditions {
			if !Equal(at.Conditions[i], bt.Conditions[i]) {
				return false
			}
		}
		return true
	}
	return false
}
