package decorators

import (
	"context"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/errs"
)

// Datasource wraps every collection of a child datasource with a decorator
// of type T, built once at construction in the child's collection order.
type Datasource[T collection.Collection] struct {
	child     collection.Datasource
	order     []string
	decorated map[string]T
}

// NewDatasource wraps child. wrap receives each child collection and the new
// datasource. Layers that embed Datasource in a richer type ignore owner and
// close over their own value instead, so siblings resolve through it.
func NewDatasource[T collection.Collection](child collection.Datasource, wrap func(c collection.Collection, owner collection.Datasource) T) *Datasource[T] {
	d := &Datasource[T]{child: child, decorated: map[string]T{}}
	for _, c := range child.Collections() {
		d.order = append(d.order, c.Name())
		d.decorated[c.Name()] = wrap(c, d)
	}
	return d
}

// Child returns the wrapped datasource.
func (d *Datasource[T]) Child() collection.Datasource { return d.child }

func (d *Datasource[T]) Collections() []collection.Collection {
	out := make([]collection.Collection, len(d.order))
	for i, name := range d.order {
		out[i] = d.decorated[name]
	}
	return out
}

func (d *Datasource[T]) GetCollection(name string) (collection.Collection, error) {
	c, err := d.Decorated(name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Decorated returns the typed decorator of the named collection.
func (d *Datasource[T]) Decorated(name string) (T, error) {
	c, ok := d.decorated[name]
	if !ok {
		var zero T
		if _, err := d.child.GetCollection(name); err != nil {
			return zero, err
		}
		return zero, errs.NotFoundf("collection %q not found", name)
	}
	return c, nil
}

// Each calls fn on every decorator in collection order.
func (d *Datasource[T]) Each(fn func(T)) {
	for _, name := range d.order {
		fn(d.decorated[name])
	}
}

func (d *Datasource[T]) Schema() collection.DatasourceSchema { return d.child.Schema() }

func (d *Datasource[T]) RenderChart(ctx context.Context, caller *collection.Caller, chart string) (collection.Chart, error) {
	return d.child.RenderChart(ctx, caller, chart)
}
