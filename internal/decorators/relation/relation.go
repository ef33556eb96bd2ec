// Package relation declares relations the underlying store does not know
// about and resolves them by querying the related collection.
package relation

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

type Collection struct {
	*decorators.Collection

	ds        *decorators.Datasource[*Collection]
	relations map[string]schema.Field
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	var ds *decorators.Datasource[*Collection]
	ds = decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		r := &Collection{relations: map[string]schema.Field{}}
		r.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: r.refineSchema, RefineFilter: r.refineFilter})
		return r
	})
	ds.Each(func(c *Collection) { c.ds = ds })
	return ds
}

// AddRelation declares a relation. Empty key targets default to the
// primary key of the collection they point into.
func (c *Collection) AddRelation(name string, rel schema.Field) error {
	if _, ok := c.Schema().Fields[name]; ok {
		return errs.Configurationf("field %q already exists in %s", name, c.Name())
	}
	resolved, err := c.resolve(rel)
	if err != nil {
		return err
	}
	c.relations[name] = resolved
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) resolve(rel schema.Field) (schema.Field, error) {
	switch r := rel.(type) {
	case schema.ManyToOne:
		foreign, err := c.sibling(r.ForeignCollection)
		if err != nil {
			return nil, err
		}
		if r.ForeignKeyTarget == "" {
			if r.ForeignKeyTarget, err = singlePrimaryKey(foreign); err != nil {
				return nil, err
			}
		}
		return r, checkKeys(c, r.ForeignKey, foreign, r.ForeignKeyTarget)
	case schema.OneToOne:
		foreign, err := c.sibling(r.ForeignCollection)
		if err != nil {
			return nil, err
		}
		if r.OriginKeyTarget == "" {
			if r.OriginKeyTarget, err = singlePrimaryKey(c); err != nil {
				return nil, err
			}
		}
		return r, checkKeys(foreign, r.OriginKey, c, r.OriginKeyTarget)
	case schema.OneToMany:
		foreign, err := c.sibling(r.ForeignCollection)
		if err != nil {
			return nil, err
		}
		if r.OriginKeyTarget == "" {
			if r.OriginKeyTarget, err = singlePrimaryKey(c); err != nil {
				return nil, err
			}
		}
		return r, checkKeys(foreign, r.OriginKey, c, r.OriginKeyTarget)
	case schema.ManyToMany:
		foreign, err := c.sibling(r.ForeignCollection)
		if err != nil {
			return nil, err
		}
		through, err := c.sibling(r.ThroughCollection)
		if err != nil {
			return nil, err
		}
		if r.OriginKeyTarget == "" {
			if r.OriginKeyTarget, err = singlePrimaryKey(c); err != nil {
				return nil, err
			}
		}
		if r.ForeignKeyTarget == "" {
			if r.ForeignKeyTarget, err = singlePrimaryKey(foreign); err != nil {
				return nil, err
			}
		}
		if err := checkKeys(through, r.OriginKey, c, r.OriginKeyTarget); err != nil {
			return nil, err
		}
		return r, checkKeys(through, r.ForeignKey, foreign, r.ForeignKeyTarget)
	}
	return nil, errs.Configurationf("unsupported relation type %s", rel.FieldType())
}

func (c *Collection) sibling(name string) (*Collection, error) {
	foreign, err := c.ds.Decorated(name)
	if err != nil {
		return nil, errs.Configurationf("collection %q not found", name)
	}
	return foreign, nil
}

func singlePrimaryKey(c collection.Collection) (string, error) {
	pks := schema.PrimaryKeys(c.Schema())
	if len(pks) != 1 {
		return "", errs.Configurationf("%s must have exactly one primary key to be used as a relation target", c.Name())
	}
	return pks[0], nil
}

// checkKeys verifies that key and target are filterable columns of the
// same type.
func checkKeys(owner collection.Collection, key string, targetOwner collection.Collection, target string) error {
	k, err := keyColumn(owner, key)
	if err != nil {
		return err
	}
	t, err := keyColumn(targetOwner, target)
	if err != nil {
		return err
	}
	if k.ColumnType != t.ColumnType {
		return errs.Configurationf("types from '%s.%s' and '%s.%s' do not match", owner.Name(), key, targetOwner.Name(), target)
	}
	return nil
}

func keyColumn(owner collection.Collection, name string) (schema.Column, error) {
	col, ok := owner.Schema().Fields[name].(schema.Column)
	if !ok {
		return schema.Column{}, errs.Configurationf("column not found: '%s.%s'", owner.Name(), name)
	}
	if !col.FilterOperators.Has(schema.OpIn) {
		return schema.Column{}, errs.Configurationf("column does not support the In operator: '%s.%s'", owner.Name(), name)
	}
	return col, nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, rel := range c.relations {
		s.Fields[name] = rel
	}
	return s
}

func (c *Collection) foreign(relation string) (*Collection, error) {
	name, ok := schema.ForeignCollection(c.Schema().Fields[relation])
	if !ok {
		return nil, errs.NotFoundf("no such relation %s.%s", c.Name(), relation)
	}
	return c.ds.Decorated(name)
}

// rewriteField replaces emulated relation paths with the key the child
// must return so the relation can be resolved afterwards.
func (c *Collection) rewriteField(path string) []string {
	head, rest := schema.SplitPath(path)
	if rest == "" {
		return []string{path}
	}
	switch r := c.relations[head].(type) {
	case schema.ManyToOne:
		return []string{r.ForeignKey}
	case schema.OneToOne:
		return []string{r.OriginKeyTarget}
	}
	foreign, err := c.foreign(head)
	if err != nil {
		return []string{path}
	}
	return projection.New(foreign.rewriteField(rest)...).Nest(head)
}

func (c *Collection) touchesEmulated(path string) bool {
	out := c.rewriteField(path)
	return len(out) != 1 || out[0] != path
}

func (c *Collection) refineFilter(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if f.ConditionTree != nil {
		tree, err := f.ConditionTree.ReplaceErr(func(l condtree.Leaf) (condtree.Tree, error) {
			return c.rewriteLeaf(ctx, caller, l)
		})
		if err != nil {
			return f, err
		}
		f = f.WithConditionTree(tree)
	}
	if f.Sort != nil {
		f = f.WithSort(f.Sort.ReplaceClauses(func(clause filter.Clause) filter.Sort {
			fields := c.rewriteField(clause.Field)
			out := make(filter.Sort, len(fields))
			for i, field := range fields {
				out[i] = filter.Clause{Field: field, Ascending: clause.Ascending}
			}
			return out
		}))
	}
	return f, nil
}

// rewriteLeaf turns a condition on an emulated relation into a condition
// on the local key, by listing the matching related records first.
func (c *Collection) rewriteLeaf(ctx context.Context, caller *collection.Caller, l condtree.Leaf) (condtree.Tree, error) {
	head, rest := schema.SplitPath(l.Field)
	if rest == "" {
		return l, nil
	}
	foreign, err := c.foreign(head)
	if err != nil {
		return nil, err
	}
	var key, target string
	switch r := c.relations[head].(type) {
	case schema.ManyToOne:
		key, target = r.ForeignKey, r.ForeignKeyTarget
	case schema.OneToOne:
		key, target = r.OriginKeyTarget, r.OriginKey
	default:
		sub, err := foreign.rewriteLeaf(ctx, caller, l.ReplaceField(rest))
		if err != nil {
			return nil, err
		}
		return sub.Nest(head), nil
	}

	records, err := foreign.List(ctx, caller, filter.PaginatedFilter{}.WithConditionTree(l.ReplaceField(rest)), projection.New(target))
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(records))
	for _, r := range records {
		if v := ir.FieldValue(r, target); v != nil {
			values = append(values, v)
		}
	}
	return condtree.NewLeaf(key, schema.OpIn, ir.Dedup(values)), nil
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	childProjection, err := p.Replace(c.rewriteField).WithPks(collection.Source(c))
	if err != nil {
		return nil, err
	}
	records, err := c.Collection.List(ctx, caller, f, childProjection)
	if err != nil {
		return nil, err
	}
	if err := c.reprojectInPlace(ctx, caller, records, p); err != nil {
		return nil, err
	}
	return p.Apply(records), nil
}

// reprojectInPlace fills emulated relations of records, recursing into
// relations the child resolved natively. Related collections are queried
// concurrently and the results applied once every query returned.
func (c *Collection) reprojectInPlace(ctx context.Context, caller *collection.Caller, records []collection.Record, p projection.Projection) error {
	if len(records) == 0 {
		return nil
	}
	names := p.RelationNames()
	relations := p.Relations()
	slots := make([][]any, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		sub := relations[name]
		g.Go(func() error {
			values, err := c.fetchRelation(gctx, caller, records, name, sub)
			slots[i] = values
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, name := range names {
		if slots[i] == nil {
			continue
		}
		for j, r := range records {
			if r != nil {
				r[name] = slots[i][j]
			}
		}
	}
	return nil
}

// fetchRelation returns the related record of every record for emulated
// relations, or nil after recursing into a native relation.
func (c *Collection) fetchRelation(ctx context.Context, caller *collection.Caller, records []collection.Record, name string, sub projection.Projection) ([]any, error) {
	foreign, err := c.foreign(name)
	if err != nil {
		return nil, err
	}
	var key, target string
	switch r := c.relations[name].(type) {
	case schema.ManyToOne:
		key, target = r.ForeignKey, r.ForeignKeyTarget
	case schema.OneToOne:
		key, target = r.OriginKeyTarget, r.OriginKey
	default:
		nested := make([]collection.Record, 0, len(records))
		for _, r := range records {
			if related, ok := r[name].(map[string]any); ok && related != nil {
				nested = append(nested, related)
			}
		}
		return nil, foreign.reprojectInPlace(ctx, caller, nested, sub)
	}

	var ids []any
	for _, r := range records {
		if v := r[key]; v != nil {
			ids = append(ids, v)
		}
	}
	out := make([]any, len(records))
	ids = ir.Dedup(ids)
	if len(ids) == 0 {
		return out, nil
	}

	related, err := foreign.List(ctx, caller,
		filter.PaginatedFilter{}.WithConditionTree(condtree.NewLeaf(target, schema.OpIn, ids)),
		sub.Union(projection.New(target)))
	if err != nil {
		return nil, err
	}
	slog.Debug("relation reprojection", "collection", c.Name(), "relation", name, "records", len(records), "related", len(related))

	byKey := make(map[string]collection.Record, len(related))
	for _, r := range related {
		byKey[ir.MustValueKey(r[target])] = r
	}
	for j, r := range records {
		if v := r[key]; v != nil {
			if match, ok := byKey[ir.MustValueKey(v)]; ok {
				out[j] = match
				continue
			}
		}
		out[j] = nil
	}
	return out, nil
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	emulated := false
	for _, path := range a.Projection() {
		if c.touchesEmulated(path) {
			emulated = true
			break
		}
	}
	if !emulated {
		return c.Collection.Aggregate(ctx, caller, f, a, limit)
	}
	records, err := c.List(ctx, caller, f.Paginated(), a.Projection())
	if err != nil {
		return nil, err
	}
	return a.Apply(records, f.Location(), limit)
}
