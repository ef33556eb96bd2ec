package condtree

import (
	"encoding/json"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// ToPlain returns the JSON-shaped form of t: leaves become
// {field, operator, value}, branches {aggregator, conditions}. Nil stays nil.
func ToPlain(t Tree) any {
	switch n := t.(type) {
	case Leaf:
		return map[string]any{"field": n.Field, "operator": string(n.Operator), "value": n.Value}
	case Branch:
		conditions := make([]any, len(n.Conditions))
		for i, c := range n.Conditions {
			conditions[i] = ToPlain(c)
		}
		return map[string]any{"aggregator": string(n.Aggregator), "conditions": conditions}
	}
	return nil
}

// FromPlain reads the form written by ToPlain. Branches with a single child
// collapse into that child.
func FromPlain(v any) (Tree, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errs.Filterf("failed to instantiate condition tree from %T", v)
	}
	if field, ok := m["field"].(string); ok {
		op, _ := m["operator"].(string)
		if !schema.Operator(op).IsValid() {
			return nil, errs.Filterf("unknown operator %q", op)
		}
		return NewLeaf(field, schema.Operator(op), m["value"]), nil
	}
	agg, ok := m["aggregator"].(string)
	if !ok {
		return nil, errs.Filterf("failed to instantiate condition tree: missing field or aggregator")
	}
	if agg != string(And) && agg != string(Or) {
		return nil, errs.Filterf("unknown aggregator %q", agg)
	}
	raw, _ := m["conditions"].([]any)
	conditions := make([]Tree, 0, len(raw))
	for _, c := range raw {
		sub, err := FromPlain(c)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, sub)
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return Branch{Aggregator: Aggregator(agg), Conditions: conditions}, nil
}

// MarshalJSON writes the plain form.
func (l Leaf) MarshalJSON() ([]byte, error) { return json.Marshal(ToPlain(l)) }

// MarshalJSON writes the plain form.
func (b Branch) MarshalJSON() ([]byte, error) { return json.Marshal(ToPlain(b)) }

// Unmarshal decodes a JSON condition tree.
func Unmarshal(data []byte) (Tree, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errs.Filterf("invalid condition tree json: %v", err)
	}
	return FromPlain(v)
}
