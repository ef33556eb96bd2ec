package decorators

import (
	"context"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
)

// CustomizationContext is handed to customer callbacks. Collection is the
// decorated collection at the layer the callback was registered on.
type CustomizationContext struct {
	Collection collection.Collection
	Caller     *collection.Caller
}

// NewContext builds a customization context.
func NewContext(c collection.Collection, caller *collection.Caller) *CustomizationContext {
	return &CustomizationContext{Collection: c, Caller: caller}
}

// Datasource returns the datasource the collection belongs to.
func (cc *CustomizationContext) Datasource() collection.Datasource {
	return cc.Collection.Datasource()
}

// List lists records of the context collection on behalf of the caller.
func (cc *CustomizationContext) List(ctx context.Context, tree condtree.Tree, p projection.Projection) ([]collection.Record, error) {
	return cc.Collection.List(ctx, cc.Caller, filter.Filter{ConditionTree: tree}.Paginated(), p)
}

// SiblingCollection returns another collection of the same datasource.
func (cc *CustomizationContext) SiblingCollection(name string) (collection.Collection, error) {
	c, err := cc.Datasource().GetCollection(name)
	if err != nil {
		return nil, errs.NotFoundf("collection %q not found from %q", name, cc.Collection.Name())
	}
	return c, nil
}
