// Package renamefield publishes fields and collections under new names.
// Every path crossing the layer is rewritten in both directions.
package renamefield

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

type Collection struct {
	*decorators.Collection

	ds        *Datasource
	toChild   map[string]string
	fromChild map[string]string
}

func (c *Collection) Name() string { return c.ds.publishedName(c.Child().Name()) }

// RenameField publishes current under next. Renaming a renamed field
// replaces the earlier rename, and renaming it back cancels it.
func (c *Collection) RenameField(current, next string) error {
	fields := c.Schema().Fields
	if _, ok := fields[current]; !ok {
		return errs.NotFoundf("no such field %s.%s", c.Name(), current)
	}
	if _, taken := fields[next]; taken && next != current {
		return errs.Configurationf("field %s.%s already exists", c.Name(), next)
	}

	childName := c.fieldToChild(current)
	for name, f := range c.Child().Schema().Fields {
		if r, ok := f.(schema.PolymorphicManyToOne); ok && (r.ForeignKey == childName || r.ForeignKeyTypeField == childName) {
			return errs.Configurationf("cannot rename %s.%s because it is used by polymorphic relation %s", c.Name(), current, name)
		}
	}

	if prev, ok := c.toChild[current]; ok {
		delete(c.toChild, current)
		delete(c.fromChild, prev)
	}
	if childName != next {
		c.fromChild[childName] = next
		c.toChild[next] = childName
	}
	c.ds.markAllDirty()
	return nil
}

func (c *Collection) fieldToChild(name string) string {
	if n, ok := c.toChild[name]; ok {
		return n
	}
	return name
}

func (c *Collection) fieldFromChild(name string) string {
	if n, ok := c.fromChild[name]; ok {
		return n
	}
	return name
}

// foreign resolves a collection by the name the child layer knows it by.
func (c *Collection) foreign(childName string) *Collection {
	f, err := c.ds.Datasource.Decorated(childName)
	if err != nil {
		return nil
	}
	return f
}

func (c *Collection) foreignFromChild(collectionName, field string) string {
	if f := c.foreign(collectionName); f != nil {
		return f.fieldFromChild(field)
	}
	return field
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	fields := make(map[string]schema.Field, len(s.Fields))
	for name, f := range s.Fields {
		switch r := f.(type) {
		case schema.ManyToOne:
			r.ForeignKey = c.fieldFromChild(r.ForeignKey)
			r.ForeignKeyTarget = c.foreignFromChild(r.ForeignCollection, r.ForeignKeyTarget)
			r.ForeignCollection = c.ds.publishedName(r.ForeignCollection)
			f = r
		case schema.OneToOne:
			r.OriginKey = c.foreignFromChild(r.ForeignCollection, r.OriginKey)
			r.OriginKeyTarget = c.fieldFromChild(r.OriginKeyTarget)
			r.ForeignCollection = c.ds.publishedName(r.ForeignCollection)
			f = r
		case schema.OneToMany:
			r.OriginKey = c.foreignFromChild(r.ForeignCollection, r.OriginKey)
			r.OriginKeyTarget = c.fieldFromChild(r.OriginKeyTarget)
			r.ForeignCollection = c.ds.publishedName(r.ForeignCollection)
			f = r
		case schema.ManyToMany:
			r.ForeignKey = c.foreignFromChild(r.ThroughCollection, r.ForeignKey)
			r.OriginKey = c.foreignFromChild(r.ThroughCollection, r.OriginKey)
			r.ForeignKeyTarget = c.foreignFromChild(r.ForeignCollection, r.ForeignKeyTarget)
			r.OriginKeyTarget = c.fieldFromChild(r.OriginKeyTarget)
			r.ForeignCollection = c.ds.publishedName(r.ForeignCollection)
			r.ThroughCollection = c.ds.publishedName(r.ThroughCollection)
			f = r
		case schema.PolymorphicManyToOne:
			targets := make(map[string]string, len(r.ForeignKeyTargets))
			names := make([]string, len(r.ForeignCollections))
			for i, fc := range r.ForeignCollections {
				names[i] = c.ds.publishedName(fc)
			}
			for fc, target := range r.ForeignKeyTargets {
				targets[c.ds.publishedName(fc)] = c.foreignFromChild(fc, target)
			}
			r.ForeignCollections, r.ForeignKeyTargets = names, targets
			f = r
		case schema.PolymorphicOneToOne:
			r.OriginKey = c.foreignFromChild(r.ForeignCollection, r.OriginKey)
			r.OriginTypeField = c.foreignFromChild(r.ForeignCollection, r.OriginTypeField)
			r.OriginKeyTarget = c.fieldFromChild(r.OriginKeyTarget)
			r.ForeignCollection = c.ds.publishedName(r.ForeignCollection)
			f = r
		case schema.PolymorphicOneToMany:
			r.OriginKey = c.foreignFromChild(r.ForeignCollection, r.OriginKey)
			r.OriginTypeField = c.foreignFromChild(r.ForeignCollection, r.OriginTypeField)
			r.OriginKeyTarget = c.fieldFromChild(r.OriginKeyTarget)
			r.ForeignCollection = c.ds.publishedName(r.ForeignCollection)
			f = r
		}
		fields[c.fieldFromChild(name)] = f
	}
	s.Fields = fields
	return s
}

// PathToChild rewrites a published path ("author:name") into child names.
func (c *Collection) PathToChild(path string) string {
	head, rest := schema.SplitPath(path)
	childHead := c.fieldToChild(head)
	if rest == "" {
		return childHead
	}
	if fc, ok := schema.ForeignCollection(c.Child().Schema().Fields[childHead]); ok {
		if f := c.foreign(fc); f != nil {
			return childHead + ":" + f.PathToChild(rest)
		}
	}
	return childHead + ":" + rest
}

// PathFromChild is the inverse of PathToChild.
func (c *Collection) PathFromChild(path string) string {
	head, rest := schema.SplitPath(path)
	published := c.fieldFromChild(head)
	if rest == "" {
		return published
	}
	if fc, ok := schema.ForeignCollection(c.Child().Schema().Fields[head]); ok {
		if f := c.foreign(fc); f != nil {
			return published + ":" + f.PathFromChild(rest)
		}
	}
	return published + ":" + rest
}

func (c *Collection) recordToChild(r collection.Record) collection.Record {
	return c.mapRecord(r, c.fieldToChild, func(f *Collection) func(collection.Record) collection.Record { return f.recordToChild }, true)
}

func (c *Collection) recordFromChild(r collection.Record) collection.Record {
	return c.mapRecord(r, c.fieldFromChild, func(f *Collection) func(collection.Record) collection.Record { return f.recordFromChild }, false)
}

func (c *Collection) mapRecord(r collection.Record, rename func(string) string, nested func(*Collection) func(collection.Record) collection.Record, toChild bool) collection.Record {
	if r == nil {
		return nil
	}
	out := make(collection.Record, len(r))
	childFields := c.Child().Schema().Fields
	for k, v := range r {
		name := rename(k)
		childName := k
		if toChild {
			childName = name
		}
		if sub, ok := v.(map[string]any); ok {
			if fc, isRel := schema.ForeignCollection(childFields[childName]); isRel {
				if f := c.foreign(fc); f != nil {
					v = nested(f)(sub)
				}
			}
		}
		out[name] = v
	}
	return out
}

func (c *Collection) refineFilter(_ context.Context, _ *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if f.ConditionTree != nil {
		f = f.WithConditionTree(f.ConditionTree.Replace(func(l condtree.Leaf) condtree.Tree {
			return l.ReplaceField(c.PathToChild(l.Field))
		}))
	}
	f.Sort = f.Sort.ReplaceClauses(func(cl filter.Clause) filter.Sort {
		return filter.Sort{{Field: c.PathToChild(cl.Field), Ascending: cl.Ascending}}
	})
	return f, nil
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	childProjection := p.Replace(func(path string) []string { return []string{c.PathToChild(path)} })
	records, err := c.Collection.List(ctx, caller, f, childProjection)
	if err != nil {
		return nil, err
	}
	out := make([]collection.Record, len(records))
	for i, r := range records {
		out[i] = c.recordFromChild(r)
	}
	return out, nil
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	in := make([]collection.Record, len(records))
	for i, r := range records {
		in[i] = c.recordToChild(r)
	}
	created, err := c.Collection.Create(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	out := make([]collection.Record, len(created))
	for i, r := range created {
		out[i] = c.recordFromChild(r)
	}
	return out, nil
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	return c.Collection.Update(ctx, caller, f, c.recordToChild(patch))
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	results, err := c.Collection.Aggregate(ctx, caller, f, a.ReplaceFields(c.PathToChild), limit)
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		group := make(map[string]any, len(r.Group))
		for k, v := range r.Group {
			group[c.PathFromChild(k)] = v
		}
		results[i].Group = group
	}
	return results, nil
}

// Datasource publishes collections under new names.
type Datasource struct {
	*decorators.Datasource[*Collection]

	toChildName   map[string]string
	fromChildName map[string]string
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *Datasource {
	d := &Datasource{toChildName: map[string]string{}, fromChildName: map[string]string{}}
	d.Datasource = decorators.NewDatasource(child, func(c collection.Collection, _ collection.Datasource) *Collection {
		r := &Collection{ds: d, toChild: map[string]string{}, fromChild: map[string]string{}}
		r.Collection = decorators.NewCollection(c, d, decorators.Hooks{RefineSchema: r.refineSchema, RefineFilter: r.refineFilter})
		return r
	})
	return d
}

func (d *Datasource) publishedName(childName string) string {
	if n, ok := d.fromChildName[childName]; ok {
		return n
	}
	return childName
}

func (d *Datasource) GetCollection(name string) (collection.Collection, error) {
	c, err := d.Decorated(name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Decorated looks a collection up by its published name.
func (d *Datasource) Decorated(name string) (*Collection, error) {
	if renamed, ok := d.fromChildName[name]; ok {
		return nil, errs.NotFoundf("collection %q has been renamed to %q", name, renamed)
	}
	childName := name
	if n, ok := d.toChildName[name]; ok {
		childName = n
	}
	if _, err := d.Child().GetCollection(childName); err != nil {
		return nil, err
	}
	return d.Datasource.Decorated(childName)
}

// Collections follows the child, so collections removed below stay hidden.
func (d *Datasource) Collections() []collection.Collection {
	var out []collection.Collection
	for _, c := range d.Child().Collections() {
		if r, err := d.Datasource.Decorated(c.Name()); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// RenameCollection publishes the collection current under next.
func (d *Datasource) RenameCollection(current, next string) error {
	c, err := d.Decorated(current)
	if err != nil {
		return err
	}
	if current == next {
		return nil
	}
	if _, taken := d.Decorated(next); taken == nil {
		return errs.Configurationf("the given new collection name %q is already defined", next)
	}
	if _, renamed := d.toChildName[current]; renamed {
		return errs.Configurationf("cannot rename a collection twice: %s -> %s", d.toChildName[current], next)
	}
	for name, f := range c.Child().Schema().Fields {
		switch f.(type) {
		case schema.PolymorphicOneToOne, schema.PolymorphicOneToMany:
			return errs.Configurationf("cannot rename collection %q because it is the target of polymorphic relation %s.%s", current, current, name)
		}
	}
	d.fromChildName[current] = next
	d.toChildName[next] = current
	d.markAllDirty()
	return nil
}

// RenameCollections applies several renames from a published-name map.
func (d *Datasource) RenameCollections(renames map[string]string) error {
	for _, current := range slices.Sorted(maps.Keys(renames)) {
		if err := d.RenameCollection(current, renames[current]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Datasource) markAllDirty() {
	d.Each(func(c *Collection) { c.MarkSchemaAsDirty() })
}
