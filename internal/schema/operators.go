package schema

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
)

// OperatorSet is an immutable-by-convention set of operators.
// Never mutate a set obtained from a schema: build a new one with Union/With.
type OperatorSet map[Operator]struct{}

// NewOperatorSet builds a set from operators.
func NewOperatorSet(ops ...Operator) OperatorSet {
	s := make(OperatorSet, len(ops))
	for _, op := range ops {
		s[op] = struct{}{}
	}
	return s
}

// Has reports whether op is in the set.
func (s OperatorSet) Has(op Operator) bool {
	_, ok := s[op]
	return ok
}

// HasAll reports whether every op is in the set.
func (s OperatorSet) HasAll(ops ...Operator) bool {
	for _, op := range ops {
		if !s.Has(op) {
			return false
		}
	}
	return true
}

// With returns a new set containing s plus ops.
func (s OperatorSet) With(ops ...Operator) OperatorSet {
	out := make(OperatorSet, len(s)+len(ops))
	for op := range s {
		out[op] = struct{}{}
	}
	for _, op := range ops {
		out[op] = struct{}{}
	}
	return out
}

// Union returns a new set containing both sets.
func (s OperatorSet) Union(other OperatorSet) OperatorSet {
	return s.With(other.Sorted()...)
}

// Sorted returns the operators in lexical order.
func (s OperatorSet) Sorted() []Operator {
	out := make([]Operator, 0, len(s))
	for op := range s {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key returns a stable string identifying the set's content.
func (s OperatorSet) Key() string {
	parts := make([]string, 0, len(s))
	for _, op := range s.Sorted() {
		parts = append(parts, string(op))
	}
	return strings.Join(parts, ",")
}

// MarshalJSON writes the set as a sorted list.
func (s OperatorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON reads a list of operators.
func (s *OperatorSet) UnmarshalJSON(data []byte) error {
	var ops []Operator
	if err := json.Unmarshal(data, &ops); err != nil {
		return err
	}
	*s = NewOperatorSet(ops...)
	return nil
}

var commonOperators = []Operator{OpBlank, OpEqual, OpMissing, OpNotEqual, OpPresent}

// DefaultOperators returns the operators a store typically supports natively
// for a column type. Used by reference datasources and by operator emulation
// when a customer asks to emulate "all filtering" on a field.
func DefaultOperators(t PrimitiveType) OperatorSet {
	base := NewOperatorSet(commonOperators...)
	switch t {
	case TypeBoolean, TypeJSON:
		return base
	case TypeUUID:
		return base.With(OpContains, OpEndsWith, OpLike, OpStartsWith, OpIn, OpNotIn)
	case TypeNumber:
		return base.With(OpGreaterThan, OpLessThan, OpIn, OpNotIn)
	case TypeString:
		return base.With(OpContains, OpEndsWith, OpIn, OpLike, OpILike, OpLongerThan,
			OpNotContains, OpNotIn, OpShorterThan, OpStartsWith)
	case TypeDate, TypeDateOnly, TypeTimeOnly:
		return base.With(OpGreaterThan, OpLessThan)
	case TypeEnum, TypeBinary:
		return base.With(OpIn, OpNotIn)
	default:
		return NewOperatorSet()
	}
}

var (
	baseOperators     = []Operator{OpBlank, OpEqual, OpMissing, OpNotEqual, OpPresent}
	arrayOperators    = []Operator{OpIn, OpNotIn, OpIncludesAll}
	dateOnlyOperators = []Operator{
		OpToday, OpYesterday, OpPreviousXDays, OpPreviousXDaysToDate,
		OpPreviousWeek, OpPreviousWeekToDate, OpPreviousMonth, OpPreviousMonthToDate,
		OpPreviousQuarter, OpPreviousQuarterToDate, OpPreviousYear, OpPreviousYearToDate,
		OpPast, OpFuture, OpBefore, OpAfter,
	}
)

// AllowedOperators returns every operator that makes sense for a column type,
// whether or not a store supports it.
func AllowedOperators(t PrimitiveType) OperatorSet {
	switch t {
	case TypeString:
		return NewOperatorSet(slices.Concat(baseOperators, arrayOperators, []Operator{
			OpContains, OpNotContains, OpEndsWith, OpStartsWith, OpLongerThan,
			OpShorterThan, OpLike, OpILike, OpMatch,
		})...)
	case TypeNumber:
		return NewOperatorSet(slices.Concat(baseOperators, arrayOperators, []Operator{OpGreaterThan, OpLessThan})...)
	case TypeDateOnly:
		return NewOperatorSet(slices.Concat(baseOperators, dateOnlyOperators, []Operator{OpGreaterThan, OpLessThan})...)
	case TypeDate:
		return NewOperatorSet(slices.Concat(baseOperators, dateOnlyOperators,
			[]Operator{OpBeforeXHoursAgo, OpAfterXHoursAgo, OpGreaterThan, OpLessThan})...)
	case TypeTimeOnly:
		return NewOperatorSet(slices.Concat(baseOperators, []Operator{OpLessThan, OpGreaterThan})...)
	case TypeEnum, TypeUUID, TypeBinary:
		return NewOperatorSet(slices.Concat(baseOperators, arrayOperators)...)
	case TypeJSON:
		return NewOperatorSet(OpBlank, OpMissing, OpPresent)
	case TypeBoolean, TypePoint:
		return NewOperatorSet(baseOperators...)
	default:
		return NewOperatorSet()
	}
}
