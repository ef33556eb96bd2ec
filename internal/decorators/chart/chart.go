// Package chart registers charts on collections and on the datasource.
package chart

import (
	"context"
	"slices"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Definition renders a collection chart for one record.
type Definition func(ctx context.Context, cc *Context, b Builder) (collection.Chart, error)

// DatasourceDefinition renders a chart that is not tied to a record.
type DatasourceDefinition func(ctx context.Context, cc *DatasourceContext, b Builder) (collection.Chart, error)

// Context is the customization context of a collection chart.
type Context struct {
	*decorators.CustomizationContext
	CompositeRecordID []any
}

// RecordID returns the id of the record the chart is rendered for.
func (cc *Context) RecordID() (any, error) {
	if len(cc.CompositeRecordID) != 1 {
		return nil, errs.Configurationf("collection is using a composite pk: use CompositeRecordID")
	}
	return cc.CompositeRecordID[0], nil
}

// Record loads fields of the record the chart is rendered for.
func (cc *Context) Record(ctx context.Context, fields projection.Projection) (collection.Record, error) {
	tree, err := condtree.MatchIDs(cc.Collection.Schema(), [][]any{cc.CompositeRecordID})
	if err != nil {
		return nil, err
	}
	records, err := cc.Collection.List(ctx, cc.Caller, filter.PaginatedFilter{}.WithConditionTree(tree), fields)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errs.NotFoundf("record %v not found in %s", cc.CompositeRecordID, cc.Collection.Name())
	}
	return records[0], nil
}

// DatasourceContext is the customization context of a datasource chart.
type DatasourceContext struct {
	Datasource collection.Datasource
	Caller     *collection.Caller
}

type Collection struct {
	*decorators.Collection
	charts map[string]Definition
}

// AddChart registers a chart on the collection.
func (c *Collection) AddChart(name string, def Definition) error {
	if slices.Contains(c.Schema().Charts, name) {
		return errs.Configurationf("chart %s already exists", name)
	}
	c.charts[name] = def
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name := range c.charts {
		s.Charts = append(s.Charts, name)
	}
	slices.Sort(s.Charts)
	return s
}

func (c *Collection) RenderChart(ctx context.Context, caller *collection.Caller, name string, recordID []any) (collection.Chart, error) {
	def, ok := c.charts[name]
	if !ok {
		return c.Collection.RenderChart(ctx, caller, name, recordID)
	}
	cc := &Context{CustomizationContext: decorators.NewContext(c, caller), CompositeRecordID: recordID}
	return def(ctx, cc, Builder{})
}

// Datasource adds datasource-level charts on top of the collection ones.
type Datasource struct {
	*decorators.Datasource[*Collection]
	charts map[string]DatasourceDefinition
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *Datasource {
	d := &Datasource{charts: map[string]DatasourceDefinition{}}
	d.Datasource = decorators.NewDatasource(child, func(c collection.Collection, _ collection.Datasource) *Collection {
		cc := &Collection{charts: map[string]Definition{}}
		cc.Collection = decorators.NewCollection(c, d, decorators.Hooks{RefineSchema: cc.refineSchema})
		return cc
	})
	return d
}

// AddChart registers a datasource chart.
func (d *Datasource) AddChart(name string, def DatasourceDefinition) error {
	if slices.Contains(d.Schema().Charts, name) {
		return errs.Configurationf("chart %s already exists", name)
	}
	d.charts[name] = def
	return nil
}

func (d *Datasource) Schema() collection.DatasourceSchema {
	s := d.Datasource.Schema()
	charts := slices.Clone(s.Charts)
	for name := range d.charts {
		charts = append(charts, name)
	}
	slices.Sort(charts)
	s.Charts = slices.Compact(charts)
	return s
}

func (d *Datasource) RenderChart(ctx context.Context, caller *collection.Caller, name string) (collection.Chart, error) {
	def, ok := d.charts[name]
	if !ok {
		return d.Datasource.RenderChart(ctx, caller, name)
	}
	return def(ctx, &DatasourceContext{Datasource: d, Caller: caller}, Builder{})
}
