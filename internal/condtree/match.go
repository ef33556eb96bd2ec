package condtree

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

// MatchableOperators are the operators Leaf.Match evaluates directly. Every
// other operator is first rewritten through the equivalence engine.
var MatchableOperators = schema.NewOperatorSet(
	schema.OpPresent, schema.OpBlank, schema.OpMissing,
	schema.OpEqual, schema.OpNotEqual, schema.OpLessThan, schema.OpGreaterThan,
	schema.OpIn, schema.OpNotIn, schema.OpLike, schema.OpILike,
	schema.OpContains, schema.OpNotContains, schema.OpStartsWith, schema.OpEndsWith,
	schema.OpLongerThan, schema.OpShorterThan, schema.OpIncludesAll, schema.OpMatch,
)

var folder = cases.Fold()

func (l Leaf) Match(record map[string]any, ev Evaluation) (bool, error) {
	v := ir.FieldValue(record, l.Field)

	switch l.Operator {
	case schema.OpPresent:
		return !isBlank(v), nil
	case schema.OpBlank:
		return isBlank(v), nil
	case schema.OpMissing:
		return v == nil, nil
	case schema.OpEqual:
		return valuesEqual(v, l.Value), nil
	case schema.OpNotEqual:
		return !valuesEqual(v, l.Value), nil
	case schema.OpLessThan:
		c, ok := compareValues(v, l.Value)
		return ok && c < 0, nil
	case schema.OpGreaterThan:
		c, ok := compareValues(v, l.Value)
		return ok && c > 0, nil
	case schema.OpIn, schema.OpNotIn:
		values, _ := ir.AsSlice(l.Value)
		found := false
		for _, candidate := range values {
			if valuesEqual(v, candidate) {
				found = true
				break
			}
		}
		return found == (l.Operator == schema.OpIn), nil
	case schema.OpLike:
		return like(v, l.Value, false), nil
	case schema.OpILike:
		return like(v, l.Value, true), nil
	case schema.OpContains, schema.OpNotContains, schema.OpStartsWith, schema.OpEndsWith:
		s, sok := v.(string)
		pattern, pok := l.Value.(string)
		if !sok || !pok {
			return l.Operator == schema.OpNotContains, nil
		}
		switch l.Operator {
		case schema.OpContains:
			return strings.Contains(s, pattern), nil
		case schema.OpNotContains:
			return !strings.Contains(s, pattern), nil
		case schema.OpStartsWith:
			return strings.HasPrefix(s, pattern), nil
		default:
			return strings.HasSuffix(s, pattern), nil
		}
	case schema.OpLongerThan, schema.OpShorterThan:
		s, ok := v.(string)
		n, nok := ir.ToFloat(l.Value)
		if !ok || !nok {
			return false, nil
		}
		length := float64(utf8.RuneCountInString(s))
		if l.Operator == schema.OpLongerThan {
			return length > n, nil
		}
		return length < n, nil
	case schema.OpIncludesAll:
		have, ok := ir.AsSlice(v)
		if !ok {
			return false, nil
		}
		want, _ := ir.AsSlice(l.Value)
		for _, w := range want {
			if !ir.Contains(have, w) {
				return false, nil
			}
		}
		return true, nil
	case schema.OpMatch:
		return matchRegexp(v, l.Value)
	}

	columnType := schema.TypeDate
	if ev.Source != nil {
		if col, err := schema.ColumnAt(ev.Source, l.Field); err == nil {
			columnType = col.ColumnType
		}
	}
	equivalent, ok, err := GetEquivalentTreeAt(l, MatchableOperators, columnType, ev.location(), ev.now())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errs.Filterf("operator %q cannot be evaluated in memory on %q", l.Operator, l.Field)
	}
	if equivalent == nil {
		return true, nil
	}
	return equivalent.Match(record, ev)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// valuesEqual is ir.Equal, plus time-aware comparison of ISO strings.
func valuesEqual(a, b any) bool {
	if ir.Equal(a, b) {
		return true
	}
	if c, ok := compareTimes(a, b); ok {
		return c == 0
	}
	return false
}

// compareValues orders two non-nil values. ISO date strings are compared as
// instants so that offsets and date-only values order correctly.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if c, ok := compareTimes(a, b); ok {
		return c, true
	}
	return ir.Compare(a, b)
}

func compareTimes(a, b any) (int, bool) {
	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if !aIsString || !bIsString {
		return 0, false
	}
	at, err := ir.ParseTime(as)
	if err != nil {
		return 0, false
	}
	bt, err := ir.ParseTime(bs)
	if err != nil {
		return 0, false
	}
	return at.Compare(bt), true
}

// like evaluates a SQL LIKE pattern where % matches any run and _ matches a
// single character.
func like(v, pattern any, insensitive bool) bool {
	s, ok := v.(string)
	p, pok := pattern.(string)
	if !ok || !pok {
		return false
	}
	if insensitive {
		s, p = folder.String(s), folder.String(p)
	}
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for _, r := range p {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String()).MatchString(s)
}

// matchRegexp accepts a bare pattern or the "/pattern/flags" form.
func matchRegexp(v, pattern any) (bool, error) {
	s, ok := v.(string)
	p, pok := pattern.(string)
	if !pok {
		return false, errs.Filterf("match operator expects a string pattern, got %v", pattern)
	}
	if !ok {
		return false, nil
	}
	if strings.HasPrefix(p, "/") {
		if end := strings.LastIndex(p, "/"); end > 0 {
			flags := p[end+1:]
			p = p[1:end]
			if strings.Contains(flags, "i") {
				p = "(?i)" + p
			}
		}
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false, errs.Filterf("invalid match pattern %q: %v", p, err)
	}
	return re.MatchString(s), nil
}
