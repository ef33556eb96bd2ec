package write

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// createRelations creates the related records nested in a create payload.
type createRelations struct {
	*decorators.Collection
	ds *decorators.Datasource[*createRelations]
}

type nested struct {
	record collection.Record
	index  int
}

func (c *createRelations) Create(ctx context.Context, caller *collection.Caller, data []collection.Record) ([]collection.Record, error) {
	s := c.Schema()
	records := make([]collection.Record, len(data))
	byRelation := map[string][]nested{}
	for i, r := range data {
		records[i] = maps.Clone(r)
		for key, value := range r {
			field, ok := s.Fields[key]
			if !ok || schema.IsColumn(field) {
				continue
			}
			switch field.(type) {
			case schema.ManyToOne, schema.OneToOne:
			default:
				return nil, errs.Validationf("cannot create %s.%s records through a %s relation", c.Name(), key, field.FieldType())
			}
			delete(records[i], key)
			if sub, ok := value.(map[string]any); ok && sub != nil {
				byRelation[key] = append(byRelation[key], nested{record: sub, index: i})
			}
		}
	}
	relations := slices.Sorted(maps.Keys(byRelation))

	for _, key := range relations {
		if rel, ok := s.Fields[key].(schema.ManyToOne); ok {
			if err := c.createManyToOne(ctx, caller, records, rel, byRelation[key]); err != nil {
				return nil, err
			}
		}
	}

	created, err := c.Collection.Create(ctx, caller, records)
	if err != nil {
		return nil, err
	}

	for _, key := range relations {
		if rel, ok := s.Fields[key].(schema.OneToOne); ok {
			if err := c.createOneToOne(ctx, caller, created, rel, byRelation[key]); err != nil {
				return nil, err
			}
		}
	}
	return created, nil
}

// createManyToOne creates the related records whose foreign key is not set
// yet and patches the key into the parents. Related records whose foreign
// key is already set are updated instead.
func (c *createRelations) createManyToOne(ctx context.Context, caller *collection.Caller, records []collection.Record, rel schema.ManyToOne, entries []nested) error {
	foreign, err := c.ds.Decorated(rel.ForeignCollection)
	if err != nil {
		return err
	}
	var creations, updates []nested
	for _, e := range entries {
		if records[e.index][rel.ForeignKey] == nil {
			creations = append(creations, e)
		} else {
			updates = append(updates, e)
		}
	}

	if len(creations) > 0 {
		subs := make([]collection.Record, len(creations))
		for i, e := range creations {
			subs[i] = e.record
		}
		related, err := foreign.Create(ctx, caller, subs)
		if err != nil {
			return err
		}
		for i, e := range creations {
			records[e.index][rel.ForeignKey] = related[i][rel.ForeignKeyTarget]
		}
	}
	for _, e := range updates {
		tree := condtree.NewLeaf(rel.ForeignKeyTarget, schema.OpEqual, records[e.index][rel.ForeignKey])
		if err := foreign.Update(ctx, caller, filter.Filter{ConditionTree: tree}, e.record); err != nil {
			return err
		}
	}
	return nil
}

// createOneToOne creates the related records once the parents have keys.
func (c *createRelations) createOneToOne(ctx context.Context, caller *collection.Caller, created []collection.Record, rel schema.OneToOne, entries []nested) error {
	foreign, err := c.ds.Decorated(rel.ForeignCollection)
	if err != nil {
		return err
	}
	subs := make([]collection.Record, len(entries))
	for i, e := range entries {
		sub := maps.Clone(e.record)
		sub[rel.OriginKey] = created[e.index][rel.OriginKeyTarget]
		subs[i] = sub
	}
	_, err = foreign.Create(ctx, caller, subs)
	return err
}

// updateRelations updates or creates the related records nested in an
// update patch.
type updateRelations struct {
	*decorators.Collection
	ds *decorators.Datasource[*updateRelations]
}

func (c *updateRelations) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	s := c.Schema()
	columns := collection.Record{}
	var relations []string
	for key, value := range patch {
		field, ok := s.Fields[key]
		if !ok {
			return errs.Validationf("unknown field %q in %s", key, c.Name())
		}
		switch field.(type) {
		case schema.Column:
			columns[key] = value
		case schema.ManyToOne, schema.OneToOne:
			relations = append(relations, key)
		default:
			return errs.Validationf("cannot update %s.%s through a %s relation", c.Name(), key, field.FieldType())
		}
	}
	if len(columns) > 0 {
		if err := c.Collection.Update(ctx, caller, f, columns); err != nil {
			return err
		}
	}
	if len(relations) == 0 {
		return nil
	}
	slices.Sort(relations)

	p, err := c.projection(relations)
	if err != nil {
		return err
	}
	records, err := c.Collection.List(ctx, caller, f.Paginated(), p)
	if err != nil {
		return err
	}
	for _, key := range relations {
		sub, ok := patch[key].(map[string]any)
		if !ok || sub == nil {
			continue
		}
		if err := c.createOrUpdate(ctx, caller, records, key, sub); err != nil {
			return err
		}
	}
	return nil
}

// projection is enough to tell, for every parent, whether the related record
// exists and how to target it.
func (c *updateRelations) projection(relations []string) (projection.Projection, error) {
	src := collection.Source(c)
	p, err := projection.New().WithPks(src)
	if err != nil {
		return nil, err
	}
	for _, key := range relations {
		foreign, err := c.foreign(key)
		if err != nil {
			return nil, err
		}
		pks, err := projection.New().WithPks(collection.Source(foreign))
		if err != nil {
			return nil, err
		}
		p = p.Union(pks.Nest(key))
		switch rel := c.Schema().Fields[key].(type) {
		case schema.ManyToOne:
			p = p.Union(projection.New(rel.ForeignKeyTarget).Nest(key))
		case schema.OneToOne:
			p = p.Union(projection.New(rel.OriginKeyTarget))
		}
	}
	return p, nil
}

func (c *updateRelations) foreign(relation string) (*updateRelations, error) {
	name, ok := schema.ForeignCollection(c.Schema().Fields[relation])
	if !ok {
		return nil, errs.NotFoundf("no such relation %s.%s", c.Name(), relation)
	}
	return c.ds.Decorated(name)
}

func (c *updateRelations) createOrUpdate(ctx context.Context, caller *collection.Caller, records []collection.Record, key string, patch collection.Record) error {
	foreign, err := c.foreign(key)
	if err != nil {
		return err
	}
	var creates []collection.Record
	var existing []map[string]any
	for _, r := range records {
		if related, ok := r[key].(map[string]any); ok && related != nil {
			existing = append(existing, related)
		} else {
			creates = append(creates, r)
		}
	}

	if len(creates) > 0 {
		switch rel := c.Schema().Fields[key].(type) {
		case schema.ManyToOne:
			created, err := foreign.Create(ctx, caller, []collection.Record{maps.Clone(patch)})
			if err != nil {
				return err
			}
			tree, err := condtree.MatchRecords(c.Schema(), creates)
			if err != nil {
				return err
			}
			link := collection.Record{rel.ForeignKey: created[0][rel.ForeignKeyTarget]}
			if err := c.Update(ctx, caller, filter.Filter{ConditionTree: tree}, link); err != nil {
				return err
			}
		case schema.OneToOne:
			subs := make([]collection.Record, len(creates))
			for i, r := range creates {
				sub := ir.CloneRecord(patch)
				sub[rel.OriginKey] = r[rel.OriginKeyTarget]
				subs[i] = sub
			}
			if _, err := foreign.Create(ctx, caller, subs); err != nil {
				return err
			}
		}
	}

	if len(existing) > 0 {
		tree, err := condtree.MatchRecords(foreign.Schema(), existing)
		if err != nil {
			return err
		}
		return foreign.Update(ctx, caller, filter.Filter{ConditionTree: tree}, patch)
	}
	return nil
}
