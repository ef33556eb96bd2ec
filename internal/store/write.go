package store

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Create inserts the records in one transaction. Missing columns take their
// default value; a missing Uuid key is generated, a missing Number key is
// assigned by SQLite.
func (c *Collection) Create(ctx context.Context, _ *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	s := c.Schema()
	for _, r := range records {
		for k := range r {
			if !schema.IsColumn(s.Fields[k]) {
				return nil, errs.Validationf("unknown column %q in collection %q", k, c.Name())
			}
		}
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create in %q", c.Name())
	}
	defer tx.Rollback()

	out := make([]collection.Record, 0, len(records))
	for _, r := range records {
		row := collection.Record{}
		var assigned string
		for _, name := range s.FieldNames() {
			col, ok := s.Fields[name].(schema.Column)
			if !ok {
				continue
			}
			v, present := r[name]
			switch {
			case present:
				row[name] = v
			case col.IsPrimaryKey && col.ColumnType == schema.TypeUUID:
				row[name] = uuid.Must(uuid.NewV7()).String()
			case col.IsPrimaryKey && col.ColumnType == schema.TypeNumber:
				assigned = name
			default:
				row[name] = col.DefaultValue
			}
		}

		q, err := c.store.compiler().Insert(c.Name(), row)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, q.SQL, q.Params...)
		if err != nil {
			return nil, errors.Wrapf(err, "insert into %q", c.Name())
		}
		if assigned != "" {
			id, err := res.LastInsertId()
			if err != nil {
				return nil, errors.Wrapf(err, "read generated key of %q", c.Name())
			}
			row[assigned] = id
		}
		out = append(out, ir.CloneRecord(row))
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "create in %q", c.Name())
	}
	slog.Debug("sqlite create", "collection", c.Name(), "count", len(out))
	return out, nil
}

// Update applies the patch to every matching row. An empty patch is a no-op.
func (c *Collection) Update(ctx context.Context, _ *collection.Caller, f filter.Filter, patch collection.Record) error {
	if err := c.supports(f); err != nil {
		return err
	}
	s := c.Schema()
	for k := range patch {
		if !schema.IsColumn(s.Fields[k]) {
			return errs.Validationf("unknown column %q in collection %q", k, c.Name())
		}
	}
	if len(patch) == 0 {
		return nil
	}
	q, err := c.store.compiler().Update(c.Name(), patch, f.ConditionTree)
	if err != nil {
		return err
	}
	return c.exec(ctx, "update", q.SQL, q.Params)
}

// Delete removes every matching row.
func (c *Collection) Delete(ctx context.Context, _ *collection.Caller, f filter.Filter) error {
	if err := c.supports(f); err != nil {
		return err
	}
	q, err := c.store.compiler().Delete(c.Name(), f.ConditionTree)
	if err != nil {
		return err
	}
	return c.exec(ctx, "delete", q.SQL, q.Params)
}

func (c *Collection) exec(ctx context.Context, op, sql string, params []any) error {
	res, err := c.store.db.ExecContext(ctx, sql, params...)
	if err != nil {
		return errors.Wrapf(err, "%s %q", op, c.Name())
	}
	n, _ := res.RowsAffected()
	slog.Debug("sqlite "+op, "collection", c.Name(), "rows", n)
	return nil
}
