package collection

import (
	"context"
	"sort"
	"strings"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// BaseCollection carries the name, schema and owner of a reference
// collection. Embedders implement the CRUD methods; actions and charts fail
// until a decorator provides them.
type BaseCollection struct {
	name       string
	datasource Datasource
	schema     schema.CollectionSchema
}

// NewBaseCollection returns a base with an empty countable schema.
func NewBaseCollection(name string, ds Datasource) BaseCollection {
	return BaseCollection{name: name, datasource: ds, schema: schema.NewCollectionSchema()}
}

func (b *BaseCollection) Name() string                    { return b.name }
func (b *BaseCollection) Datasource() Datasource          { return b.datasource }
func (b *BaseCollection) Schema() schema.CollectionSchema { return b.schema }

// AddField declares a field. Declaring the same name twice is a
// configuration error.
func (b *BaseCollection) AddField(name string, f schema.Field) error {
	if _, ok := b.schema.Fields[name]; ok {
		return errs.Configurationf("field %q already defined in collection %q", name, b.name)
	}
	b.schema.Fields[name] = f
	return nil
}

// AddFields declares several fields in name order.
func (b *BaseCollection) AddFields(fields map[string]schema.Field) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.AddField(name, fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// SetSearchable toggles native search support.
func (b *BaseCollection) SetSearchable(v bool) { b.schema.Searchable = v }

// SetCountable toggles native count support.
func (b *BaseCollection) SetCountable(v bool) { b.schema.Countable = v }

func (b *BaseCollection) Execute(_ context.Context, _ *Caller, action string, _ Record, _ filter.Filter) (ActionResult, error) {
	return ActionResult{}, errs.NotFoundf("action %q is not implemented in collection %q", action, b.name)
}

func (b *BaseCollection) GetForm(_ context.Context, _ *Caller, _ string, _ Record, _ filter.Filter) ([]ActionField, error) {
	return nil, nil
}

func (b *BaseCollection) RenderChart(_ context.Context, _ *Caller, chart string, _ []any) (Chart, error) {
	return nil, errs.NotFoundf("chart %q is not implemented in collection %q", chart, b.name)
}

// BaseDatasource keeps collections in insertion order.
type BaseDatasource struct {
	order       []string
	collections map[string]Collection
}

// NewBaseDatasource returns an empty datasource.
func NewBaseDatasource() *BaseDatasource {
	return &BaseDatasource{collections: map[string]Collection{}}
}

// AddCollection registers c. Names must be unique.
func (d *BaseDatasource) AddCollection(c Collection) error {
	if _, ok := d.collections[c.Name()]; ok {
		return errs.Configurationf("collection %q already defined in datasource", c.Name())
	}
	d.order = append(d.order, c.Name())
	d.collections[c.Name()] = c
	return nil
}

func (d *BaseDatasource) Collections() []Collection {
	out := make([]Collection, len(d.order))
	for i, name := range d.order {
		out[i] = d.collections[name]
	}
	return out
}

func (d *BaseDatasource) GetCollection(name string) (Collection, error) {
	c, ok := d.collections[name]
	if !ok {
		return nil, errs.NotFoundf("collection %q not found. List of available collections: %s",
			name, strings.Join(d.order, ", "))
	}
	return c, nil
}

func (d *BaseDatasource) Schema() DatasourceSchema { return DatasourceSchema{Charts: []string{}} }

func (d *BaseDatasource) RenderChart(_ context.Context, _ *Caller, chart string) (Chart, error) {
	return nil, errs.NotFoundf("chart %q is not defined in the datasource", chart)
}
