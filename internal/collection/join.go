package collection

import (
	"context"

	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Join attaches the related record of every single-valued relation in
// relations to each row of c, fetching each foreign collection once. Rows
// must carry the local key of each relation.
func Join(ctx context.Context, caller *Caller, c Collection, rows []Record, relations map[string]projection.Projection) error {
	for name, sub := range relations {
		field, ok := c.Schema().Fields[name]
		if !ok {
			return errs.NotFoundf("relation %q not found in collection %q", name, c.Name())
		}
		var localKey, foreignKey, foreignName string
		switch r := field.(type) {
		case schema.ManyToOne:
			localKey, foreignKey, foreignName = r.ForeignKey, r.ForeignKeyTarget, r.ForeignCollection
		case schema.OneToOne:
			localKey, foreignKey, foreignName = r.OriginKeyTarget, r.OriginKey, r.ForeignCollection
		case schema.PolymorphicOneToOne:
			localKey, foreignKey, foreignName = r.OriginKeyTarget, r.OriginKey, r.ForeignCollection
		default:
			return errs.Configurationf("relation %q of collection %q cannot be joined", name, c.Name())
		}
		foreign, err := c.Datasource().GetCollection(foreignName)
		if err != nil {
			return err
		}

		values := make([]any, 0, len(rows))
		for _, row := range rows {
			if v := row[localKey]; v != nil {
				values = append(values, v)
			}
		}
		values = ir.Dedup(values)
		byKey := map[string]Record{}
		if len(values) > 0 {
			var tree condtree.Tree = condtree.NewLeaf(foreignKey, schema.OpIn, values)
			if p, ok := field.(schema.PolymorphicOneToOne); ok {
				tree = condtree.Intersect(
					condtree.NewLeaf(foreignKey, schema.OpIn, values),
					condtree.NewLeaf(p.OriginTypeField, schema.OpEqual, p.OriginTypeValue),
				)
			}
			related, err := foreign.List(ctx, caller, filter.Filter{ConditionTree: tree}.Paginated(), sub.Union(projection.New(foreignKey)))
			if err != nil {
				return err
			}
			for _, r := range related {
				byKey[ir.MustValueKey(r[foreignKey])] = r
			}
		}
		for _, row := range rows {
			v := row[localKey]
			if v == nil {
				row[name] = nil
				continue
			}
			if r, ok := byKey[ir.MustValueKey(v)]; ok {
				row[name] = r
			} else {
				row[name] = nil
			}
		}
	}
	return nil
}
