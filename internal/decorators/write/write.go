// Package write rewrites incoming writes: per-column write handlers, then
// cascading creation and update of nested related records.
package write

import (
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
)

// NewDatasource stacks the relation cascades under the write handlers:
// handlers see the raw payload, cascades see the rewritten one.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	var creates *decorators.Datasource[*createRelations]
	creates = decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *createRelations {
		return &createRelations{Collection: decorators.NewCollection(c, owner, decorators.Hooks{})}
	})
	creates.Each(func(c *createRelations) { c.ds = creates })

	var updates *decorators.Datasource[*updateRelations]
	updates = decorators.NewDatasource(creates, func(c collection.Collection, owner collection.Datasource) *updateRelations {
		return &updateRelations{Collection: decorators.NewCollection(c, owner, decorators.Hooks{})}
	})
	updates.Each(func(c *updateRelations) { c.ds = updates })

	var ds *decorators.Datasource[*Collection]
	ds = decorators.NewDatasource(updates, func(c collection.Collection, owner collection.Datasource) *Collection {
		w := &Collection{handlers: map[string]Handler{}}
		w.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: w.refineSchema})
		return w
	})
	ds.Each(func(c *Collection) { c.ds = ds })
	return ds
}
