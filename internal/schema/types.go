package schema

// PrimitiveType is the storage type of a column.
type PrimitiveType string

const (
	TypeBoolean  PrimitiveType = "Boolean"
	TypeBinary   PrimitiveType = "Binary"
	TypeDate     PrimitiveType = "Date"
	TypeDateOnly PrimitiveType = "Dateonly"
	TypeEnum     PrimitiveType = "Enum"
	TypeJSON     PrimitiveType = "Json"
	TypeNumber   PrimitiveType = "Number"
	TypePoint    PrimitiveType = "Point"
	TypeString   PrimitiveType = "String"
	TypeTimeOnly PrimitiveType = "Timeonly"
	TypeUUID     PrimitiveType = "Uuid"
)

// PrimitiveTypes lists every primitive type.
var PrimitiveTypes = []PrimitiveType{
	TypeBoolean, TypeBinary, TypeDate, TypeDateOnly, TypeEnum, TypeJSON,
	TypeNumber, TypePoint, TypeString, TypeTimeOnly, TypeUUID,
}

// FieldType discriminates schema fields.
type FieldType string

const (
	FieldColumn               FieldType = "Column"
	FieldManyToOne            FieldType = "ManyToOne"
	FieldOneToOne             FieldType = "OneToOne"
	FieldOneToMany            FieldType = "OneToMany"
	FieldManyToMany           FieldType = "ManyToMany"
	FieldPolymorphicManyToOne FieldType = "PolymorphicManyToOne"
	FieldPolymorphicOneToOne  FieldType = "PolymorphicOneToOne"
	FieldPolymorphicOneToMany FieldType = "PolymorphicOneToMany"
)

// Operator is a filter operator. Values are the snake_case wire names.
type Operator string

const (
	OpPresent               Operator = "present"
	OpBlank                 Operator = "blank"
	OpMissing               Operator = "missing"
	OpEqual                 Operator = "equal"
	OpNotEqual              Operator = "not_equal"
	OpLessThan              Operator = "less_than"
	OpGreaterThan           Operator = "greater_than"
	OpIn                    Operator = "in"
	OpNotIn                 Operator = "not_in"
	OpLike                  Operator = "like"
	OpILike                 Operator = "ilike"
	OpStartsWith            Operator = "starts_with"
	OpEndsWith              Operator = "ends_with"
	OpContains              Operator = "contains"
	OpNotContains           Operator = "not_contains"
	OpLongerThan            Operator = "longer_than"
	OpShorterThan           Operator = "shorter_than"
	OpIncludesAll           Operator = "includes_all"
	OpMatch                 Operator = "match"
	OpBefore                Operator = "before"
	OpAfter                 Operator = "after"
	OpAfterXHoursAgo        Operator = "after_x_hours_ago"
	OpBeforeXHoursAgo       Operator = "before_x_hours_ago"
	OpFuture                Operator = "future"
	OpPast                  Operator = "past"
	OpToday                 Operator = "today"
	OpYesterday             Operator = "yesterday"
	OpPreviousWeek          Operator = "previous_week"
	OpPreviousWeekToDate    Operator = "previous_week_to_date"
	OpPreviousMonth         Operator = "previous_month"
	OpPreviousMonthToDate   Operator = "previous_month_to_date"
	OpPreviousQuarter       Operator = "previous_quarter"
	OpPreviousQuarterToDate Operator = "previous_quarter_to_date"
	OpPreviousYear          Operator = "previous_year"
	OpPreviousYearToDate    Operator = "previous_year_to_date"
	OpPreviousXDays         Operator = "previous_x_days"
	OpPreviousXDaysToDate   Operator = "previous_x_days_to_date"
)

// AllOperators lists every operator in a stable order.
var AllOperators = []Operator{
	OpPresent, OpBlank, OpMissing, OpEqual, OpNotEqual, OpLessThan, OpGreaterThan,
	OpIn, OpNotIn, OpLike, OpILike, OpStartsWith, OpEndsWith, OpContains, OpNotContains,
	OpLongerThan, OpShorterThan, OpIncludesAll, OpMatch, OpBefore, OpAfter,
	OpAfterXHoursAgo, OpBeforeXHoursAgo, OpFuture, OpPast, OpToday, OpYesterday,
	OpPreviousWeek, OpPreviousWeekToDate, OpPreviousMonth, OpPreviousMonthToDate,
	OpPreviousQuarter, OpPreviousQuarterToDate, OpPreviousYear, OpPreviousYearToDate,
	OpPreviousXDays, OpPreviousXDaysToDate,
}

// IsValid reports whether op is a known operator.
func (op Operator) IsValid() bool {
	for _, known := range AllOperators {
		if known == op {
			return true
		}
	}
	return false
}

// IntervalOperators are the date operators relative to "now".
var IntervalOperators = NewOperatorSet(
	OpToday, OpYesterday,
	OpPreviousWeek, OpPreviousWeekToDate,
	OpPreviousMonth, OpPreviousMonthToDate,
	OpPreviousQuarter, OpPreviousQuarterToDate,
	OpPreviousYear, OpPreviousYearToDate,
	OpPreviousXDays, OpPreviousXDaysToDate,
)

// UniqueOperators take no value or a single scalar value.
var UniqueOperators = NewOperatorSet(
	OpEqual, OpNotEqual, OpLessThan, OpGreaterThan, OpMatch, OpLike, OpILike,
	OpNotContains, OpContains, OpStartsWith, OpEndsWith, OpLongerThan, OpShorterThan,
	OpBefore, OpAfter, OpAfterXHoursAgo, OpBeforeXHoursAgo, OpPreviousXDays,
	OpPreviousXDaysToDate,
)

// MultipleOperators take a list value.
var MultipleOperators = NewOperatorSet(OpIn, OpNotIn, OpIncludesAll)
