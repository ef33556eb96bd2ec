package store

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/querysql"
	"github.com/roach88/dstoolkit/internal/schema"
)

// List compiles the filter to one SELECT, then fetches projected relations
// from the sibling tables.
func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	if err := c.supports(f.Filter); err != nil {
		return nil, err
	}
	columns := c.selectedColumns(p)
	q, err := c.store.compiler().Select(c.Name(), columns, f.ConditionTree, f.Sort, f.Page)
	if err != nil {
		return nil, err
	}
	rows, err := c.query(ctx, q, columns)
	if err != nil {
		return nil, err
	}
	if err := collection.Join(ctx, caller, c, rows, p.Relations()); err != nil {
		return nil, err
	}
	return p.Apply(rows), nil
}

// Aggregate runs in SQL unless a group truncates dates, in which case the
// matching rows are listed and aggregated in memory.
func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	if err := c.supports(f); err != nil {
		return nil, err
	}
	if slices.ContainsFunc(a.Groups, func(g aggregation.Group) bool { return g.Operation != "" }) {
		rows, err := c.List(ctx, caller, f.Paginated(), a.Projection())
		if err != nil {
			return nil, err
		}
		return a.Apply(rows, f.Location(), limit)
	}

	q, err := c.store.compiler().Aggregate(c.Name(), a, f.ConditionTree, limit)
	if err != nil {
		return nil, err
	}
	slog.Debug("sqlite aggregate", "collection", c.Name(), "sql", q.SQL, "params", len(q.Params))

	src := collection.Source(c)
	groupColumns := make([]schema.Column, len(a.Groups))
	for i, g := range a.Groups {
		if groupColumns[i], err = schema.ColumnAt(src, g.Field); err != nil {
			return nil, err
		}
	}
	var valueColumn schema.Column
	if a.Field != "" && (a.Operation == aggregation.Max || a.Operation == aggregation.Min) {
		if valueColumn, err = schema.ColumnAt(src, a.Field); err != nil {
			return nil, err
		}
	}

	rows, err := c.store.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate %q", c.Name())
	}
	defer rows.Close()

	out := []aggregation.Result{}
	for rows.Next() {
		dest := make([]any, 1+len(a.Groups))
		ptrs := make([]any, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan aggregate of %q", c.Name())
		}
		value, err := aggregateValue(a.Operation, valueColumn, dest[0])
		if err != nil {
			return nil, err
		}
		group := map[string]any{}
		for i, g := range a.Groups {
			if group[g.Field], err = querysql.FromColumn(groupColumns[i], dest[i+1]); err != nil {
				return nil, err
			}
		}
		out = append(out, aggregation.Result{Value: value, Group: group})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "aggregate %q", c.Name())
	}
	return out, nil
}

func aggregateValue(op aggregation.Operation, col schema.Column, v any) (any, error) {
	switch op {
	case aggregation.Count:
		n, _ := v.(int64)
		return int(n), nil
	case aggregation.Max, aggregation.Min:
		return querysql.FromColumn(col, v)
	}
	return v, nil
}

func (c *Collection) supports(f filter.Filter) error {
	if f.Search != "" {
		return errs.Unprocessablef("collection %q does not support search", c.Name())
	}
	if f.Segment != "" {
		return errs.Unprocessablef("collection %q does not support segments", c.Name())
	}
	return nil
}

// selectedColumns returns the projected columns plus the primary keys and
// the local keys of projected relations.
func (c *Collection) selectedColumns(p projection.Projection) []string {
	s := c.Schema()
	columns := slices.Clone(p.Columns())
	add := func(name string) {
		if name != "" && !slices.Contains(columns, name) {
			columns = append(columns, name)
		}
	}
	for _, pk := range schema.PrimaryKeys(s) {
		add(pk)
	}
	for name := range p.Relations() {
		switch f := s.Fields[name].(type) {
		case schema.ManyToOne:
			add(f.ForeignKey)
		case schema.OneToOne:
			add(f.OriginKeyTarget)
		case schema.PolymorphicOneToOne:
			add(f.OriginKeyTarget)
		}
	}
	return columns
}

// query runs a compiled SELECT and converts each row back to record values.
func (c *Collection) query(ctx context.Context, q querysql.Query, columns []string) ([]collection.Record, error) {
	slog.Debug("sqlite select", "collection", c.Name(), "sql", q.SQL, "params", len(q.Params))
	rows, err := c.store.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, errors.Wrapf(err, "list %q", c.Name())
	}
	defer rows.Close()
	return scanRecords(rows, c.Schema(), columns)
}

func scanRecords(rows *sql.Rows, s schema.CollectionSchema, columns []string) ([]collection.Record, error) {
	out := []collection.Record{}
	for rows.Next() {
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan row")
		}
		record := make(collection.Record, len(columns))
		for i, name := range columns {
			v, err := querysql.FromColumn(s.Fields[name].(schema.Column), dest[i])
			if err != nil {
				return nil, err
			}
			record[name] = v
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read rows")
	}
	return out, nil
}
