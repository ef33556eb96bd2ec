// Package schemaoverride lets customers force collection-level schema flags.
package schemaoverride

import (
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Override lists the flags to force. Nil pointers keep the child's value.
type Override struct {
	Countable  *bool
	Searchable *bool
}

type Collection struct {
	*decorators.Collection

	override Override
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		o := &Collection{}
		o.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: o.refineSchema})
		return o
	})
}

// OverrideSchema merges o into the overrides already set.
func (c *Collection) OverrideSchema(o Override) {
	if o.Countable != nil {
		c.override.Countable = o.Countable
	}
	if o.Searchable != nil {
		c.override.Searchable = o.Searchable
	}
	c.MarkSchemaAsDirty()
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	if c.override.Countable != nil {
		s.Countable = *c.override.Countable
	}
	if c.override.Searchable != nil {
		s.Searchable = *c.override.Searchable
	}
	return s
}
