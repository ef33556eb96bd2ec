package querysql

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Catalog maps collection names to their schemas. Each collection is stored
// in a table of the same name, one column per schema column.
type Catalog map[string]schema.CollectionSchema

// NativeOperators returns the operators the compiler translates for a column
// type. Everything else is left to the decorators above the store.
func NativeOperators(t schema.PrimitiveType) schema.OperatorSet {
	ops := schema.NewOperatorSet(
		schema.OpPresent, schema.OpBlank, schema.OpMissing,
		schema.OpEqual, schema.OpNotEqual, schema.OpIn, schema.OpNotIn,
	)
	switch t {
	case schema.TypeNumber, schema.TypeDate, schema.TypeDateOnly, schema.TypeTimeOnly:
		ops = ops.With(schema.OpLessThan, schema.OpGreaterThan)
	case schema.TypeString:
		ops = ops.With(
			schema.OpLessThan, schema.OpGreaterThan,
			schema.OpLike, schema.OpILike,
			schema.OpContains, schema.OpNotContains, schema.OpStartsWith, schema.OpEndsWith,
		)
	case schema.TypeJSON, schema.TypePoint, schema.TypeBinary:
		ops = schema.NewOperatorSet(schema.OpPresent, schema.OpBlank, schema.OpMissing, schema.OpEqual, schema.OpNotEqual)
	}
	return ops
}

// SQLCompiler compiles condition trees, sorts, pages and aggregations to
// parameterized SQLite SQL.
//
// CRITICAL: values are never interpolated, every value goes through a ?
// placeholder.
// CRITICAL: every SELECT ends with the primary keys as tiebreaker so pages
// are stable.
type SQLCompiler struct {
	catalog Catalog
	aliases int
}

// NewSQLCompiler creates a compiler over catalog.
func NewSQLCompiler(catalog Catalog) *SQLCompiler {
	return &SQLCompiler{catalog: catalog}
}

// Query is a compiled statement.
type Query struct {
	SQL    string
	Params []any
}

// Select compiles a listing of columns. Columns must be plain column names of
// the collection; relation paths are only accepted inside tree and sort.
func (c *SQLCompiler) Select(collection string, columns []string, tree condtree.Tree, sort filter.Sort, page *filter.Page) (Query, error) {
	s, err := c.table(collection)
	if err != nil {
		return Query{}, err
	}
	c.aliases = 0
	alias := c.alias()

	var b builder
	b.sql.WriteString("SELECT ")
	if len(columns) == 0 {
		return Query{}, errs.Configurationf("cannot select no column from %q", collection)
	}
	for i, name := range columns {
		if _, ok := s.Fields[name].(schema.Column); !ok {
			return Query{}, errs.Configurationf("%q is not a column of %q", name, collection)
		}
		if i > 0 {
			b.sql.WriteString(", ")
		}
		fmt.Fprintf(&b.sql, "%s.%s", alias, Quote(name))
	}
	fmt.Fprintf(&b.sql, " FROM %s AS %s", Quote(collection), alias)

	if tree != nil {
		b.sql.WriteString(" WHERE ")
		if err := c.predicate(&b, alias, s, tree); err != nil {
			return Query{}, err
		}
	}

	b.sql.WriteString(" ORDER BY ")
	for _, clause := range sort {
		expr, _, err := c.expression(alias, s, clause.Field)
		if err != nil {
			return Query{}, err
		}
		direction := "ASC"
		if !clause.Ascending {
			direction = "DESC"
		}
		fmt.Fprintf(&b.sql, "%s %s, ", expr, direction)
	}
	b.sql.WriteString(stableOrderKey(alias, s))

	if page != nil && (page.Limit > 0 || page.Skip > 0) {
		limit := page.Limit
		if limit <= 0 {
			limit = -1
		}
		b.sql.WriteString(" LIMIT ? OFFSET ?")
		b.params = append(b.params, limit, page.Skip)
	}
	return Query{SQL: b.sql.String(), Params: b.params}, nil
}

// Aggregate compiles an aggregation without date groups. Rows come out
// sorted by ascending value, like aggregation.Apply.
func (c *SQLCompiler) Aggregate(collection string, a aggregation.Aggregation, tree condtree.Tree, limit int) (Query, error) {
	s, err := c.table(collection)
	if err != nil {
		return Query{}, err
	}
	c.aliases = 0
	alias := c.alias()

	var b builder
	value := "COUNT(*)"
	if a.Field != "" {
		expr, _, err := c.expression(alias, s, a.Field)
		if err != nil {
			return Query{}, err
		}
		fn := map[aggregation.Operation]string{
			aggregation.Count: "COUNT", aggregation.Sum: "TOTAL", aggregation.Avg: "AVG",
			aggregation.Max: "MAX", aggregation.Min: "MIN",
		}[a.Operation]
		if fn == "" {
			return Query{}, errs.Validationf("unknown aggregate operation %q", a.Operation)
		}
		value = fmt.Sprintf("%s(%s)", fn, expr)
	}
	fmt.Fprintf(&b.sql, "SELECT %s AS value", value)

	groups := make([]string, len(a.Groups))
	for i, g := range a.Groups {
		if g.Operation != "" {
			return Query{}, errs.Unprocessablef("date group %s(%s) is not compiled to SQL", g.Operation, g.Field)
		}
		expr, _, err := c.expression(alias, s, g.Field)
		if err != nil {
			return Query{}, err
		}
		groups[i] = expr
		fmt.Fprintf(&b.sql, ", %s AS g%d", expr, i)
	}
	fmt.Fprintf(&b.sql, " FROM %s AS %s", Quote(collection), alias)

	if tree != nil {
		b.sql.WriteString(" WHERE ")
		if err := c.predicate(&b, alias, s, tree); err != nil {
			return Query{}, err
		}
	}
	if len(groups) > 0 {
		b.sql.WriteString(" GROUP BY ")
		for i := range groups {
			if i > 0 {
				b.sql.WriteString(", ")
			}
			fmt.Fprintf(&b.sql, "g%d", i)
		}
	}
	if a.Operation == aggregation.Avg {
		b.sql.WriteString(" HAVING value IS NOT NULL")
	}
	b.sql.WriteString(" ORDER BY value ASC")
	for i := range groups {
		fmt.Fprintf(&b.sql, ", g%d ASC", i)
	}
	if limit > 0 {
		b.sql.WriteString(" LIMIT ?")
		b.params = append(b.params, limit)
	}
	return Query{SQL: b.sql.String(), Params: b.params}, nil
}

// Insert compiles the insertion of one record. Columns are sorted.
func (c *SQLCompiler) Insert(collection string, record map[string]any) (Query, error) {
	s, err := c.table(collection)
	if err != nil {
		return Query{}, err
	}
	names := slices.Sorted(maps.Keys(record))
	if len(names) == 0 {
		return Query{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", Quote(collection))}, nil
	}
	params := make([]any, len(names))
	quoted := make([]string, len(names))
	for i, name := range names {
		col, ok := s.Fields[name].(schema.Column)
		if !ok {
			return Query{}, errs.Validationf("%q is not a column of %q", name, collection)
		}
		quoted[i] = Quote(name)
		if params[i], err = ToParam(col, record[name]); err != nil {
			return Query{}, err
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Quote(collection), strings.Join(quoted, ", "), placeholders)
	return Query{SQL: sql, Params: params}, nil
}

// Update compiles a patch applied to the rows matching tree.
func (c *SQLCompiler) Update(collection string, patch map[string]any, tree condtree.Tree) (Query, error) {
	s, err := c.table(collection)
	if err != nil {
		return Query{}, err
	}
	names := slices.Sorted(maps.Keys(patch))
	if len(names) == 0 {
		return Query{}, errs.Validationf("empty patch for %q", collection)
	}
	var b builder
	fmt.Fprintf(&b.sql, "UPDATE %s SET ", Quote(collection))
	for i, name := range names {
		col, ok := s.Fields[name].(schema.Column)
		if !ok {
			return Query{}, errs.Validationf("%q is not a column of %q", name, collection)
		}
		param, err := ToParam(col, patch[name])
		if err != nil {
			return Query{}, err
		}
		if i > 0 {
			b.sql.WriteString(", ")
		}
		fmt.Fprintf(&b.sql, "%s = ?", Quote(name))
		b.params = append(b.params, param)
	}
	if err := c.rowFilter(&b, collection, s, tree); err != nil {
		return Query{}, err
	}
	return Query{SQL: b.sql.String(), Params: b.params}, nil
}

// Delete compiles the deletion of the rows matching tree.
func (c *SQLCompiler) Delete(collection string, tree condtree.Tree) (Query, error) {
	s, err := c.table(collection)
	if err != nil {
		return Query{}, err
	}
	var b builder
	fmt.Fprintf(&b.sql, "DELETE FROM %s", Quote(collection))
	if err := c.rowFilter(&b, collection, s, tree); err != nil {
		return Query{}, err
	}
	return Query{SQL: b.sql.String(), Params: b.params}, nil
}

// rowFilter restricts an UPDATE or DELETE through a rowid subquery so the
// tree can use the same aliased expressions as SELECT.
func (c *SQLCompiler) rowFilter(b *builder, collection string, s schema.CollectionSchema, tree condtree.Tree) error {
	if tree == nil {
		return nil
	}
	c.aliases = 0
	alias := c.alias()
	fmt.Fprintf(&b.sql, " WHERE rowid IN (SELECT %s.rowid FROM %s AS %s WHERE ", alias, Quote(collection), alias)
	if err := c.predicate(b, alias, s, tree); err != nil {
		return err
	}
	b.sql.WriteString(")")
	return nil
}

type builder struct {
	sql    strings.Builder
	params []any
}

func (c *SQLCompiler) table(name string) (schema.CollectionSchema, error) {
	s, ok := c.catalog[name]
	if !ok {
		return schema.CollectionSchema{}, errs.NotFoundf("collection %q not found", name)
	}
	return s, nil
}

func (c *SQLCompiler) alias() string {
	a := fmt.Sprintf("t%d", c.aliases)
	c.aliases++
	return a
}

// stableOrderKey orders by primary keys, COLLATE BINARY for text.
func stableOrderKey(alias string, s schema.CollectionSchema) string {
	pks := schema.PrimaryKeys(s)
	if len(pks) == 0 {
		return alias + ".rowid ASC"
	}
	parts := make([]string, len(pks))
	for i, pk := range pks {
		parts[i] = fmt.Sprintf("%s.%s ASC", alias, Quote(pk))
		if s.Fields[pk].(schema.Column).ColumnType != schema.TypeNumber {
			parts[i] = fmt.Sprintf("%s.%s COLLATE BINARY ASC", alias, Quote(pk))
		}
	}
	return strings.Join(parts, ", ")
}

// expression returns the SQL expression of a path. Relation segments become
// scalar subqueries, so a missing related record reads as NULL.
func (c *SQLCompiler) expression(alias string, s schema.CollectionSchema, path string) (string, schema.Column, error) {
	head, rest := schema.SplitPath(path)
	field, ok := s.Fields[head]
	if !ok {
		return "", schema.Column{}, errs.NotFoundf("field %q not found", head)
	}
	if rest == "" {
		col, ok := field.(schema.Column)
		if !ok {
			return "", schema.Column{}, errs.Validationf("%q is not a column", head)
		}
		return alias + "." + Quote(head), col, nil
	}

	var foreign, foreignColumn, ownColumn string
	switch rel := field.(type) {
	case schema.ManyToOne:
		foreign, foreignColumn, ownColumn = rel.ForeignCollection, rel.ForeignKeyTarget, rel.ForeignKey
	case schema.OneToOne:
		foreign, foreignColumn, ownColumn = rel.ForeignCollection, rel.OriginKey, rel.OriginKeyTarget
	default:
		return "", schema.Column{}, errs.Unprocessablef("cannot compile path %q through a %s relation", path, field.FieldType())
	}
	fs, err := c.table(foreign)
	if err != nil {
		return "", schema.Column{}, err
	}
	sub := c.alias()
	inner, col, err := c.expression(sub, fs, rest)
	if err != nil {
		return "", schema.Column{}, err
	}
	expr := fmt.Sprintf("(SELECT %s FROM %s AS %s WHERE %s.%s = %s.%s)", inner, Quote(foreign), sub, sub, Quote(foreignColumn), alias, Quote(ownColumn))
	return expr, col, nil
}

// predicate writes a condition tree. Empty OR branches match nothing and
// empty AND branches match everything.
func (c *SQLCompiler) predicate(b *builder, alias string, s schema.CollectionSchema, t condtree.Tree) error {
	switch n := t.(type) {
	case nil:
		b.sql.WriteString("1 = 1")
	case condtree.Branch:
		if len(n.Conditions) == 0 {
			if n.Aggregator == condtree.Or {
				b.sql.WriteString("1 = 0")
			} else {
				b.sql.WriteString("1 = 1")
			}
			return nil
		}
		joiner := " AND "
		if n.Aggregator == condtree.Or {
			joiner = " OR "
		}
		b.sql.WriteString("(")
		for i, sub := range n.Conditions {
			if i > 0 {
				b.sql.WriteString(joiner)
			}
			if err := c.predicate(b, alias, s, sub); err != nil {
				return err
			}
		}
		b.sql.WriteString(")")
	case condtree.Leaf:
		return c.leaf(b, alias, s, n)
	default:
		return errs.Filterf("unsupported condition tree node %T", t)
	}
	return nil
}

func (c *SQLCompiler) leaf(b *builder, alias string, s schema.CollectionSchema, l condtree.Leaf) error {
	e, col, err := c.expression(alias, s, l.Field)
	if err != nil {
		return err
	}
	if !NativeOperators(col.ColumnType).Has(l.Operator) {
		return errs.Filterf("operator %s on %q is not supported by the sqlite store", l.Operator, l.Field)
	}

	switch l.Operator {
	case schema.OpPresent:
		fmt.Fprintf(&b.sql, "(%s IS NOT NULL AND %s != '')", e, e)
	case schema.OpBlank:
		fmt.Fprintf(&b.sql, "(%s IS NULL OR %s = '')", e, e)
	case schema.OpMissing:
		fmt.Fprintf(&b.sql, "%s IS NULL", e)
	case schema.OpEqual, schema.OpLessThan, schema.OpGreaterThan:
		if l.Value == nil {
			b.sql.WriteString("1 = 0")
			return nil
		}
		op := map[schema.Operator]string{schema.OpEqual: "=", schema.OpLessThan: "<", schema.OpGreaterThan: ">"}[l.Operator]
		fmt.Fprintf(&b.sql, "%s %s ?", e, op)
		return appendParams(b, col, []any{l.Value})
	case schema.OpNotEqual:
		if l.Value == nil {
			fmt.Fprintf(&b.sql, "%s IS NOT NULL", e)
			return nil
		}
		fmt.Fprintf(&b.sql, "(%s IS NULL OR %s != ?)", e, e)
		return appendParams(b, col, []any{l.Value})
	case schema.OpIn, schema.OpNotIn:
		values, _ := ir.AsSlice(l.Value)
		var nonNull []any
		hasNull := false
		for _, v := range values {
			if v == nil {
				hasNull = true
			} else {
				nonNull = append(nonNull, v)
			}
		}
		list := inList(e, len(nonNull), l.Operator == schema.OpIn)
		switch {
		case l.Operator == schema.OpIn && hasNull:
			fmt.Fprintf(&b.sql, "(%s OR %s IS NULL)", list, e)
		case l.Operator == schema.OpIn:
			b.sql.WriteString(list)
		case hasNull:
			fmt.Fprintf(&b.sql, "(%s IS NOT NULL AND %s)", e, list)
		default:
			fmt.Fprintf(&b.sql, "(%s IS NULL OR %s)", e, list)
		}
		return appendParams(b, col, nonNull)
	case schema.OpLike:
		fmt.Fprintf(&b.sql, "%s LIKE ?", e)
		return appendParams(b, col, []any{l.Value})
	case schema.OpILike:
		fmt.Fprintf(&b.sql, "LOWER(%s) LIKE LOWER(?)", e)
		return appendParams(b, col, []any{l.Value})
	case schema.OpContains, schema.OpStartsWith, schema.OpEndsWith, schema.OpNotContains:
		pattern, ok := l.Value.(string)
		if !ok {
			return errs.Filterf("operator %s on %q expects a string", l.Operator, l.Field)
		}
		escaped := escapeLike(pattern)
		switch l.Operator {
		case schema.OpStartsWith:
			escaped += "%"
		case schema.OpEndsWith:
			escaped = "%" + escaped
		default:
			escaped = "%" + escaped + "%"
		}
		if l.Operator == schema.OpNotContains {
			fmt.Fprintf(&b.sql, `(%s IS NULL OR %s NOT LIKE ? ESCAPE '\')`, e, e)
		} else {
			fmt.Fprintf(&b.sql, `%s LIKE ? ESCAPE '\'`, e)
		}
		b.params = append(b.params, escaped)
	}
	return nil
}

// inList writes "expr IN (?, ...)". An empty list is written as a constant
// so that IN () never reaches SQLite.
func inList(e string, n int, in bool) string {
	if n == 0 {
		if in {
			return "1 = 0"
		}
		return "1 = 1"
	}
	keyword := "IN"
	if !in {
		keyword = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", e, keyword, strings.TrimSuffix(strings.Repeat("?, ", n), ", "))
}

func appendParams(b *builder, col schema.Column, values []any) error {
	for _, v := range values {
		p, err := ToParam(col, v)
		if err != nil {
			return err
		}
		b.params = append(b.params, p)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Quote quotes an identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ToParam converts a record value to what is stored in SQLite: Date values
// as RFC 3339 UTC text so that text comparison orders them, Json values as
// their JSON text, everything else as is.
func ToParam(col schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.ColumnType {
	case schema.TypeDate:
		t, ok := ir.AsTime(v)
		if !ok {
			return nil, errs.Validationf("expected a date, got %v", v)
		}
		return t.UTC().Format(time.RFC3339), nil
	case schema.TypeDateOnly:
		if s, ok := v.(string); ok && ir.IsDateOnly(s) {
			return s, nil
		}
		t, ok := ir.AsTime(v)
		if !ok {
			return nil, errs.Validationf("expected a date, got %v", v)
		}
		return t.Format("2006-01-02"), nil
	case schema.TypeJSON, schema.TypePoint:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errs.Validationf("cannot encode %v as json: %v", v, err)
		}
		return string(data), nil
	}
	return v, nil
}

// FromColumn converts a value scanned from SQLite back to a record value.
func FromColumn(col schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && col.ColumnType != schema.TypeBinary {
		v = string(b)
	}
	switch col.ColumnType {
	case schema.TypeBoolean:
		n, ok := ir.ToFloat(v)
		if !ok {
			return nil, errs.Validationf("expected a boolean, got %v", v)
		}
		return n != 0, nil
	case schema.TypeNumber:
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f), nil
		}
	case schema.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339), nil
		}
	case schema.TypeJSON, schema.TypePoint:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, errs.Validationf("stored json is invalid: %v", err)
		}
		return out, nil
	}
	return v, nil
}
