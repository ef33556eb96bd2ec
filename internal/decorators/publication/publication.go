// Package publication hides fields and whole collections from the
// advertised schema. Relations whose keys are hidden disappear with them.
package publication

import (
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Datasource hides removed collections.
type Datasource struct {
	*decorators.Datasource[*Collection]
	removed map[string]struct{}
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *Datasource {
	d := &Datasource{removed: map[string]struct{}{}}
	d.Datasource = decorators.NewDatasource(child, func(c collection.Collection, _ collection.Datasource) *Collection {
		p := &Collection{ds: d, hidden: map[string]struct{}{}}
		p.Collection = decorators.NewCollection(c, d, decorators.Hooks{RefineSchema: p.refineSchema})
		return p
	})
	return d
}

func (d *Datasource) Collections() []collection.Collection {
	var out []collection.Collection
	for _, c := range d.Datasource.Collections() {
		if _, gone := d.removed[c.Name()]; !gone {
			out = append(out, c)
		}
	}
	return out
}

func (d *Datasource) GetCollection(name string) (collection.Collection, error) {
	c, err := d.Decorated(name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Decorated returns the named collection unless it was removed.
func (d *Datasource) Decorated(name string) (*Collection, error) {
	if _, gone := d.removed[name]; gone {
		return nil, errs.NotFoundf("collection %q was removed", name)
	}
	return d.Datasource.Decorated(name)
}

// KeepCollectionsMatching removes every collection not in include (when
// include is not empty) and every collection in exclude.
func (d *Datasource) KeepCollectionsMatching(include, exclude []string) error {
	keep := map[string]struct{}{}
	for _, name := range include {
		if _, err := d.Decorated(name); err != nil {
			return err
		}
		keep[name] = struct{}{}
	}
	drop := map[string]struct{}{}
	for _, name := range exclude {
		if _, err := d.Decorated(name); err != nil {
			return err
		}
		drop[name] = struct{}{}
	}
	for _, c := range d.Collections() {
		_, kept := keep[c.Name()]
		_, dropped := drop[c.Name()]
		if (len(include) > 0 && !kept) || dropped {
			if err := d.RemoveCollection(c.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveCollection hides a collection and every relation pointing to it.
func (d *Datasource) RemoveCollection(name string) error {
	c, err := d.Decorated(name)
	if err != nil {
		return err
	}
	s := c.Schema()
	for _, fieldName := range s.FieldNames() {
		switch r := s.Fields[fieldName].(type) {
		case schema.PolymorphicOneToOne, schema.PolymorphicOneToMany:
			target, _ := schema.ForeignCollection(r)
			return errs.Configurationf("cannot remove collection %q because it's a potential target of polymorphic relation %s.%s",
				name, target, originKey(r))
		}
	}
	d.removed[name] = struct{}{}
	d.Each(func(c *Collection) { c.MarkSchemaAsDirty() })
	return nil
}

type Collection struct {
	*decorators.Collection

	ds     *Datasource
	hidden map[string]struct{}
}

// ChangeFieldVisibility shows or hides a field. Primary keys stay visible.
func (c *Collection) ChangeFieldVisibility(name string, visible bool) error {
	f, ok := c.Child().Schema().Fields[name]
	if !ok {
		return errs.NotFoundf("no such field %s.%s", c.Name(), name)
	}
	if col, isCol := f.(schema.Column); isCol && col.IsPrimaryKey {
		return errs.Configurationf("cannot hide primary key %s.%s", c.Name(), name)
	}
	if visible {
		delete(c.hidden, name)
	} else {
		c.hidden[name] = struct{}{}
	}
	c.ds.Each(func(c *Collection) { c.MarkSchemaAsDirty() })
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name := range s.Fields {
		if !c.isPublished(name) {
			delete(s.Fields, name)
		}
	}
	return s
}

// isPublished reads child schemas only, so collections that reference each
// other never recurse through Schema.
func (c *Collection) isPublished(name string) bool {
	if _, hidden := c.hidden[name]; hidden {
		return false
	}
	switch f := c.Child().Schema().Fields[name].(type) {
	case schema.Column:
		return true
	case schema.ManyToOne:
		return c.ds.published(f.ForeignCollection) && c.isPublished(f.ForeignKey)
	case schema.PolymorphicManyToOne:
		return c.isPublished(f.ForeignKey) && c.isPublished(f.ForeignKeyTypeField)
	case schema.OneToOne:
		return c.ds.fieldPublished(f.ForeignCollection, f.OriginKey)
	case schema.OneToMany:
		return c.ds.fieldPublished(f.ForeignCollection, f.OriginKey)
	case schema.PolymorphicOneToOne:
		return c.ds.fieldPublished(f.ForeignCollection, f.OriginKey)
	case schema.PolymorphicOneToMany:
		return c.ds.fieldPublished(f.ForeignCollection, f.OriginKey)
	case schema.ManyToMany:
		return c.ds.published(f.ForeignCollection) &&
			c.ds.fieldPublished(f.ThroughCollection, f.ForeignKey) &&
			c.ds.fieldPublished(f.ThroughCollection, f.OriginKey)
	}
	return false
}

func (d *Datasource) published(name string) bool {
	_, err := d.Decorated(name)
	return err == nil
}

func (d *Datasource) fieldPublished(collectionName, field string) bool {
	c, err := d.Decorated(collectionName)
	return err == nil && c.isPublished(field)
}

func originKey(f schema.Field) string {
	switch r := f.(type) {
	case schema.PolymorphicOneToOne:
		return r.OriginKey
	case schema.PolymorphicOneToMany:
		return r.OriginKey
	}
	return ""
}
