package condtree

import (
	"fmt"
	"strings"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Leaf compares one field against a value.
type Leaf struct {
	Field    string
	Operator schema.Operator
	Value    any
}

// NewLeaf builds a leaf.
func NewLeaf(field string, op schema.Operator, value any) Leaf {
	return Leaf{Field: field, Operator: op, Value: value}
}

func (Leaf) isTree() {}

func (l Leaf) String() string {
	return fmt.Sprintf("%s %s %v", l.Field, l.Operator, l.Value)
}

func (l Leaf) equal(o Leaf) bool {
	return l.Field == o.Field && l.Operator == o.Operator && ir.Equal(l.Value, o.Value)
}

// Override returns a copy with a new operator and value.
func (l Leaf) Override(op schema.Operator, value any) Leaf {
	return Leaf{Field: l.Field, Operator: op, Value: value}
}

// ReplaceField returns a copy pointing at another field.
func (l Leaf) ReplaceField(field string) Leaf {
	return Leaf{Field: field, Operator: l.Operator, Value: l.Value}
}

// UseIntervalOperator reports whether the operator is relative to "now".
func (l Leaf) UseIntervalOperator() bool {
	return schema.IntervalOperators.Has(l.Operator)
}

func (l Leaf) Projection() projection.Projection {
	return projection.New(l.Field)
}

// Inverse negates the operator. Operators with a "not_" counterpart swap
// with it, BLANK swaps with PRESENT, anything else cannot be inverted.
func (l Leaf) Inverse() (Tree, error) {
	op := string(l.Operator)
	if negated := schema.Operator("not_" + op); negated.IsValid() {
		return l.Override(negated, l.Value), nil
	}
	if positive, ok := strings.CutPrefix(op, "not_"); ok {
		return l.Override(schema.Operator(positive), l.Value), nil
	}
	switch l.Operator {
	case schema.OpBlank:
		return l.Override(schema.OpPresent, l.Value), nil
	case schema.OpPresent:
		return l.Override(schema.OpBlank, l.Value), nil
	}
	return nil, errs.Filterf("operator %q cannot be inverted", l.Operator)
}

func (l Leaf) Replace(fn func(Leaf) Tree) Tree {
	return fn(l)
}

func (l Leaf) ReplaceErr(fn func(Leaf) (Tree, error)) (Tree, error) {
	return fn(l)
}

func (l Leaf) ForEachLeaf(fn func(Leaf))          { fn(l) }
func (l Leaf) EveryLeaf(fn func(Leaf) bool) bool { return fn(l) }
func (l Leaf) SomeLeaf(fn func(Leaf) bool) bool  { return fn(l) }

func (l Leaf) Nest(prefix string) Tree {
	if prefix == "" {
		return l
	}
	return l.ReplaceField(prefix + ":" + l.Field)
}

func (l Leaf) Unnest() (Tree, error) {
	_, rest, ok := strings.Cut(l.Field, ":")
	if !ok {
		return nil, errs.Filterf("cannot unnest leaf on %q", l.Field)
	}
	return l.ReplaceField(rest), nil
}
