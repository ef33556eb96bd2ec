package collection

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// GetValue returns field of the record identified by id, reading it from
// id when field is a primary key.
func GetValue(ctx context.Context, caller *Caller, c Collection, id []any, field string) (any, error) {
	pks := schema.PrimaryKeys(c.Schema())
	if i := slices.Index(pks, field); i >= 0 && i < len(id) {
		return id[i], nil
	}
	tree, err := condtree.MatchIDs(c.Schema(), [][]any{id})
	if err != nil {
		return nil, err
	}
	records, err := c.List(ctx, caller, filter.PaginatedFilter{Filter: filter.Filter{ConditionTree: tree}}, projection.New(field))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errs.NotFoundf("record %v not found in collection %q", id, c.Name())
	}
	return records[0][field], nil
}

// InverseRelation returns the name of the field of the foreign collection
// that points back through the same keys, or "" when none does.
func InverseRelation(c Collection, relation string) (string, error) {
	field, ok := c.Schema().Fields[relation]
	if !ok {
		return "", errs.NotFoundf("relation %q not found in collection %q", relation, c.Name())
	}
	if _, poly := field.(schema.PolymorphicManyToOne); poly {
		return "", errs.Configurationf("a polymorphic many to one (%s.%s) has many inverse relations", c.Name(), relation)
	}
	foreignName, ok := schema.ForeignCollection(field)
	if !ok {
		return "", errs.Configurationf("field %q of collection %q is not a relation", relation, c.Name())
	}
	foreign, err := c.Datasource().GetCollection(foreignName)
	if err != nil {
		return "", err
	}
	inverse := ""
	fs := foreign.Schema()
	for _, name := range fs.FieldNames() {
		if isInverse(fs.Fields[name], field, c.Name()) {
			inverse = name
		}
	}
	return inverse, nil
}

func isInverse(candidate, relation schema.Field, origin string) bool {
	switch f := candidate.(type) {
	case schema.ManyToOne:
		if f.ForeignCollection != origin {
			return false
		}
		switch r := relation.(type) {
		case schema.OneToMany:
			return f.ForeignKey == r.OriginKey
		case schema.OneToOne:
			return f.ForeignKey == r.OriginKey
		}
	case schema.OneToMany:
		r, ok := relation.(schema.ManyToOne)
		return ok && f.ForeignCollection == origin && f.OriginKey == r.ForeignKey
	case schema.OneToOne:
		r, ok := relation.(schema.ManyToOne)
		return ok && f.ForeignCollection == origin && f.OriginKey == r.ForeignKey
	case schema.ManyToMany:
		r, ok := relation.(schema.ManyToMany)
		return ok && f.ForeignCollection == origin && f.OriginKey == r.ForeignKey &&
			f.ThroughCollection == r.ThroughCollection && f.ForeignKey == r.OriginKey
	case schema.PolymorphicManyToOne:
		switch r := relation.(type) {
		case schema.PolymorphicOneToMany:
			return f.ForeignKey == r.OriginKey && f.ForeignKeyTypeField == r.OriginTypeField &&
				slices.Contains(f.ForeignCollections, r.OriginTypeValue)
		case schema.PolymorphicOneToOne:
			return f.ForeignKey == r.OriginKey && f.ForeignKeyTypeField == r.OriginTypeField &&
				slices.Contains(f.ForeignCollections, r.OriginTypeValue)
		}
	}
	return false
}

func toManyRelation(c Collection, relation string) (schema.Field, error) {
	f, ok := c.Schema().Fields[relation]
	if !ok {
		return nil, errs.NotFoundf("relation %q not found in collection %q", relation, c.Name())
	}
	switch f.(type) {
	case schema.OneToMany, schema.ManyToMany, schema.PolymorphicOneToMany:
		return f, nil
	}
	return nil, errs.Configurationf("relation %q of collection %q has type %s, expected a to-many relation",
		relation, c.Name(), f.FieldType())
}

// MakeForeignFilter returns a filter on the foreign collection of a to-many
// relation selecting the records related to the record identified by id,
// intersected with base.
func MakeForeignFilter(ctx context.Context, caller *Caller, c Collection, id []any, relation string, base filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	field, err := toManyRelation(c, relation)
	if err != nil {
		return filter.PaginatedFilter{}, err
	}
	var origin condtree.Tree
	switch r := field.(type) {
	case schema.OneToMany:
		v, err := GetValue(ctx, caller, c, id, r.OriginKeyTarget)
		if err != nil {
			return filter.PaginatedFilter{}, err
		}
		origin = condtree.NewLeaf(r.OriginKey, schema.OpEqual, v)
	case schema.PolymorphicOneToMany:
		v, err := GetValue(ctx, caller, c, id, r.OriginKeyTarget)
		if err != nil {
			return filter.PaginatedFilter{}, err
		}
		origin = condtree.Intersect(
			condtree.NewLeaf(r.OriginKey, schema.OpEqual, v),
			condtree.NewLeaf(r.OriginTypeField, schema.OpEqual, r.OriginTypeValue),
		)
	case schema.ManyToMany:
		v, err := GetValue(ctx, caller, c, id, r.OriginKeyTarget)
		if err != nil {
			return filter.PaginatedFilter{}, err
		}
		through, err := c.Datasource().GetCollection(r.ThroughCollection)
		if err != nil {
			return filter.PaginatedFilter{}, err
		}
		rows, err := through.List(ctx, caller,
			filter.Filter{ConditionTree: condtree.NewLeaf(r.OriginKey, schema.OpEqual, v)}.Paginated(),
			projection.New(r.ForeignKey))
		if err != nil {
			return filter.PaginatedFilter{}, err
		}
		keys := make([]any, 0, len(rows))
		for _, row := range rows {
			keys = append(keys, row[r.ForeignKey])
		}
		origin = condtree.NewLeaf(r.ForeignKeyTarget, schema.OpIn, ir.Dedup(keys))
	}
	return base.WithConditionTree(condtree.Intersect(base.ConditionTree, origin)), nil
}

// MakeThroughFilter returns a filter on the through collection of a
// many-to-many relation selecting the join rows of the record identified by
// id whose foreign record matches base.
func MakeThroughFilter(ctx context.Context, caller *Caller, c Collection, id []any, relation string, base filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	r, ok := c.Schema().Fields[relation].(schema.ManyToMany)
	if !ok {
		return filter.PaginatedFilter{}, errs.Configurationf("relation %q of collection %q must be many to many", relation, c.Name())
	}
	v, err := GetValue(ctx, caller, c, id, r.OriginKeyTarget)
	if err != nil {
		return filter.PaginatedFilter{}, err
	}
	originLeaf := condtree.NewLeaf(r.OriginKey, schema.OpEqual, v)

	if r.ForeignRelation != "" && base.IsNestable() {
		nested, err := base.Nest(r.ForeignRelation)
		if err != nil {
			return filter.PaginatedFilter{}, err
		}
		return nested.WithConditionTree(condtree.Intersect(originLeaf, nested.ConditionTree)), nil
	}

	target, err := c.Datasource().GetCollection(r.ForeignCollection)
	if err != nil {
		return filter.PaginatedFilter{}, err
	}
	foreignFilter, err := MakeForeignFilter(ctx, caller, c, id, relation, base)
	if err != nil {
		return filter.PaginatedFilter{}, err
	}
	records, err := target.List(ctx, caller, foreignFilter, projection.New(r.ForeignKeyTarget))
	if err != nil {
		return filter.PaginatedFilter{}, err
	}
	keys := make([]any, len(records))
	for i, rec := range records {
		keys[i] = rec[r.ForeignKeyTarget]
	}
	return filter.Filter{ConditionTree: condtree.Intersect(
		originLeaf,
		condtree.NewLeaf(r.ForeignKey, schema.OpIn, keys),
	)}.Paginated(), nil
}

// ListRelation lists the records related to id through a to-many relation.
func ListRelation(ctx context.Context, caller *Caller, c Collection, id []any, relation string, f filter.PaginatedFilter, p projection.Projection) ([]Record, error) {
	field, err := toManyRelation(c, relation)
	if err != nil {
		return nil, err
	}
	if r, ok := field.(schema.ManyToMany); ok && r.ForeignRelation != "" && f.IsNestable() {
		through, err := c.Datasource().GetCollection(r.ThroughCollection)
		if err != nil {
			return nil, err
		}
		tf, err := MakeThroughFilter(ctx, caller, c, id, relation, f)
		if err != nil {
			return nil, err
		}
		rows, err := through.List(ctx, caller, tf, p.Nest(r.ForeignRelation))
		if err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(rows))
		for _, row := range rows {
			if nested, ok := row[r.ForeignRelation].(Record); ok {
				out = append(out, nested)
			}
		}
		return out, nil
	}
	foreignName, _ := schema.ForeignCollection(field)
	foreign, err := c.Datasource().GetCollection(foreignName)
	if err != nil {
		return nil, err
	}
	ff, err := MakeForeignFilter(ctx, caller, c, id, relation, f)
	if err != nil {
		return nil, err
	}
	return foreign.List(ctx, caller, ff, p)
}

// FieldSchema resolves a path from c, crossing many-to-one and one-to-one
// relations.
func FieldSchema(c Collection, path string) (schema.Field, error) {
	f, err := schema.FieldAt(Source(c), path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s.%s", c.Name(), path)
	}
	return f, nil
}
