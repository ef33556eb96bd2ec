package schema

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
)

// ValidateColumnValue checks that v is acceptable for column c. Nil is always
// accepted. Used when customers pass values into configuration calls
// (segment trees, replacement results, validation rules).
func ValidateColumnValue(field string, c Column, v any) error {
	if v == nil {
		return nil
	}
	ok := true
	switch c.ColumnType {
	case TypeNumber:
		ok = ir.IsNumber(v)
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeString, TypeBinary:
		_, ok = v.(string)
		if !ok && c.ColumnType == TypeBinary {
			_, ok = v.([]byte)
		}
	case TypeEnum:
		s, isString := v.(string)
		ok = isString && contains(c.EnumValues, s)
	case TypeUUID:
		s, isString := v.(string)
		ok = isString && uuid.Validate(s) == nil
		if !ok {
			_, ok = v.(uuid.UUID)
		}
	case TypeDate, TypeDateOnly:
		if s, isString := v.(string); isString {
			_, err := ir.ParseTime(s)
			ok = err == nil
		} else {
			_, ok = ir.AsTime(v)
		}
	}
	if !ok {
		return errs.Validationf("wrong type for %q: %v, expects %s", field, printable(v), c.ColumnType)
	}
	return nil
}

// ValidateOperatorValue checks the value shape an operator expects: lists
// for multiple operators, scalars for unique operators, nothing otherwise.
func ValidateOperatorValue(field string, c Column, op Operator, v any) error {
	switch {
	case MultipleOperators.Has(op):
		items, ok := ir.AsSlice(v)
		if !ok {
			return errs.Filterf("operator %s on %q expects a list, got %v", op, field, printable(v))
		}
		for _, item := range items {
			if err := ValidateColumnValue(field, c, item); err != nil {
				return err
			}
		}
	case op == OpLongerThan || op == OpShorterThan || op == OpPreviousXDays ||
		op == OpPreviousXDaysToDate || op == OpAfterXHoursAgo || op == OpBeforeXHoursAgo:
		if !ir.IsNumber(v) {
			return errs.Filterf("operator %s on %q expects a number, got %v", op, field, printable(v))
		}
	case op == OpContains || op == OpNotContains || op == OpStartsWith || op == OpEndsWith ||
		op == OpLike || op == OpILike || op == OpMatch:
		if _, ok := v.(string); !ok {
			return errs.Filterf("operator %s on %q expects a string, got %v", op, field, printable(v))
		}
	case UniqueOperators.Has(op):
		if _, isList := ir.AsSlice(v); isList && c.ColumnType != TypeJSON {
			return errs.Filterf("operator %s on %q expects a single value", op, field)
		}
		if op == OpEqual || op == OpNotEqual || op == OpLessThan || op == OpGreaterThan {
			return ValidateColumnValue(field, c, v)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func printable(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
