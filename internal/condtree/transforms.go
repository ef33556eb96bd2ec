package condtree

import (
	"slices"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

func override(op schema.Operator, value func(Leaf) any) replacer {
	return func(l Leaf, _ Env) (Tree, error) {
		return l.Override(op, value(l)), nil
	}
}

func constant(v any) func(Leaf) any { return func(Leaf) any { return v } }
func wrapped(l Leaf) any            { return []any{l.Value} }

func equalityTransforms() map[schema.Operator][]*alternative {
	stringOnly := []schema.PrimitiveType{schema.TypeString}
	// An empty string is blank but not null, so null checks alone cannot
	// stand in for blank/present on strings.
	notString := slices.DeleteFunc(slices.Clone(schema.PrimitiveTypes), func(t schema.PrimitiveType) bool {
		return t == schema.TypeString
	})
	return map[schema.Operator][]*alternative{
		schema.OpBlank: {
			{dependsOn: []schema.Operator{schema.OpIn}, forTypes: stringOnly, replace: override(schema.OpIn, constant([]any{nil, ""}))},
			{dependsOn: []schema.Operator{schema.OpMissing}, forTypes: notString, replace: override(schema.OpMissing, constant(nil))},
		},
		schema.OpMissing: {
			{dependsOn: []schema.Operator{schema.OpEqual}, replace: override(schema.OpEqual, constant(nil))},
		},
		schema.OpPresent: {
			{dependsOn: []schema.Operator{schema.OpNotIn}, forTypes: stringOnly, replace: override(schema.OpNotIn, constant([]any{nil, ""}))},
			{dependsOn: []schema.Operator{schema.OpNotEqual}, forTypes: notString, replace: override(schema.OpNotEqual, constant(nil))},
		},
		schema.OpEqual: {
			{dependsOn: []schema.Operator{schema.OpIn}, replace: override(schema.OpIn, wrapped)},
		},
		schema.OpNotEqual: {
			{dependsOn: []schema.Operator{schema.OpNotIn}, replace: override(schema.OpNotIn, wrapped)},
		},
		schema.OpIn: {
			{dependsOn: []schema.Operator{schema.OpEqual}, replace: func(l Leaf, _ Env) (Tree, error) {
				values, _ := ir.AsSlice(l.Value)
				trees := make([]Tree, len(values))
				for i, v := range values {
					trees[i] = l.Override(schema.OpEqual, v)
				}
				if len(trees) == 0 {
					return MatchNone(), nil
				}
				return Union(trees...), nil
			}},
		},
		schema.OpNotIn: {
			{dependsOn: []schema.Operator{schema.OpNotEqual}, replace: func(l Leaf, _ Env) (Tree, error) {
				values, _ := ir.AsSlice(l.Value)
				trees := make([]Tree, len(values))
				for i, v := range values {
					trees[i] = l.Override(schema.OpNotEqual, v)
				}
				return Intersect(trees...), nil
			}},
		},
	}
}

func likes(pattern func(string) string) []*alternative {
	return []*alternative{{
		dependsOn: []schema.Operator{schema.OpLike},
		forTypes:  []schema.PrimitiveType{schema.TypeString},
		replace: func(l Leaf, _ Env) (Tree, error) {
			if l.Value == nil || l.Value == "" {
				return nil, errs.Filterf("unable to use like with an empty value on %q", l.Field)
			}
			return l.Override(schema.OpLike, pattern(ir.ToString(l.Value))), nil
		},
	}}
}

func patternTransforms() map[schema.Operator][]*alternative {
	return map[schema.Operator][]*alternative{
		schema.OpContains:   likes(func(v string) string { return "%" + v + "%" }),
		schema.OpStartsWith: likes(func(v string) string { return v + "%" }),
		schema.OpEndsWith:   likes(func(v string) string { return "%" + v }),
	}
}
