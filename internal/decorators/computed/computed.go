// Package computed adds read-only columns whose values are derived from
// other fields of the same record.
package computed

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Definition describes a computed column. Values receives distinct partial
// records holding the dependencies and returns one value per record.
type Definition struct {
	ColumnType   schema.PrimitiveType
	Dependencies []string
	Values       func(ctx context.Context, records []collection.Record, cc *decorators.CustomizationContext) ([]any, error)
	DefaultValue any
	EnumValues   []string
}

type Collection struct {
	*decorators.Collection

	ds        *decorators.Datasource[*Collection]
	computeds map[string]Definition
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	var ds *decorators.Datasource[*Collection]
	ds = decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		cc := &Collection{computeds: map[string]Definition{}}
		cc.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: cc.refineSchema})
		return cc
	})
	ds.Each(func(c *Collection) { c.ds = ds })
	return ds
}

// RegisterComputed declares a computed column. Dependencies must be
// columns of this layer, possibly other computed columns or columns of
// related collections.
func (c *Collection) RegisterComputed(name string, def Definition) error {
	if len(def.Dependencies) == 0 {
		return errs.Configurationf("computed field %q must have at least one dependency", name)
	}
	if def.Values == nil {
		return errs.Configurationf("computed field %q has no value producer", name)
	}
	src := collection.Source(c)
	for _, dep := range def.Dependencies {
		if _, err := schema.ColumnAt(src, dep); err != nil {
			return errs.Configurationf("the dependency %s of the computed field %s is unknown in the collection %s", dep, name, c.Name())
		}
	}
	c.computeds[name] = def
	c.MarkSchemaAsDirty()
	return nil
}

// Has reports whether name is a computed column of this layer.
func (c *Collection) Has(name string) bool {
	_, ok := c.computeds[name]
	return ok
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, def := range c.computeds {
		s.Fields[name] = schema.Column{
			ColumnType:      def.ColumnType,
			DefaultValue:    def.DefaultValue,
			EnumValues:      def.EnumValues,
			FilterOperators: schema.NewOperatorSet(),
			IsReadOnly:      true,
		}
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

// lookup returns the computed definition at path and the collection that
// owns it.
func (c *Collection) lookup(path string) (Definition, *Collection, bool) {
	head, rest := schema.SplitPath(path)
	if rest == "" {
		def, ok := c.computeds[head]
		return def, c, ok
	}
	foreign, err := c.foreign(head)
	if err != nil {
		return Definition{}, nil, false
	}
	return foreign.lookup(rest)
}

// rewriteField replaces computed paths with the fields they depend on.
func (c *Collection) rewriteField(path string) []string {
	head, rest := schema.SplitPath(path)
	if rest != "" {
		foreign, err := c.foreign(head)
		if err != nil {
			return []string{path}
		}
		return projection.New(foreign.rewriteField(rest)...).Nest(head)
	}
	def, ok := c.computeds[path]
	if !ok {
		return []string{path}
	}
	return projection.New(def.Dependencies...).Replace(c.rewriteField)
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	childProjection := p.Replace(c.rewriteField)
	records, err := c.Collection.List(ctx, caller, f, childProjection)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || childProjection.Equals(p) {
		return records, nil
	}
	return c.computeFromRecords(ctx, caller, childProjection, p, records)
}

func (c *Collection) computeFromRecords(ctx context.Context, caller *collection.Caller, fetched, desired projection.Projection, records []collection.Record) ([]collection.Record, error) {
	q := &queue{owner: c, ctx: ctx, caller: caller}
	q.paths = WithNullMarkers(fetched)
	q.flats = Flatten(records, q.paths)

	final := WithNullMarkers(desired)
	for _, path := range final {
		if err := q.add(path); err != nil {
			return nil, err
		}
	}
	columns := make([][]any, len(final))
	for i, path := range final {
		columns[i] = q.flats[slices.Index(q.paths, path)]
	}
	out := desired.Apply(Unflatten(columns, final))
	return out, nil
}

type queue struct {
	owner  *Collection
	ctx    context.Context
	caller *collection.Caller
	paths  []string
	flats  [][]any
}

// add computes path once, after computing its own dependencies.
func (q *queue) add(path string) error {
	if slices.Contains(q.paths, path) {
		return nil
	}
	def, owner, ok := q.owner.lookup(path)
	if !ok {
		return errs.Configurationf("%s is not a computed field of %s", path, q.owner.Name())
	}
	deps := WithNullMarkers(def.Dependencies)
	nested, prefix := deps, ""
	if i := strings.LastIndex(path, ":"); i >= 0 {
		prefix = path[:i]
		nested = deps.Nest(prefix)
	}
	for _, dep := range nested {
		if err := q.add(dep); err != nil {
			return err
		}
	}
	values := make([][]any, len(nested))
	for i, dep := range nested {
		values[i] = q.flats[slices.Index(q.paths, dep)]
	}

	partials := Unflatten(values, deps)
	var parents []any
	if prefix != "" {
		if err := q.add(prefix + ":" + NullMarker); err != nil {
			return err
		}
		parents = q.flats[slices.Index(q.paths, prefix+":"+NullMarker)]
	}
	for j, r := range partials {
		if parents != nil && parents[j] == nil {
			partials[j] = nil
			continue
		}
		stripMarkers(r)
	}
	cc := decorators.NewContext(owner, q.caller)
	computed, err := transformUnique(partials, func(unique []map[string]any) ([]any, error) {
		out, err := def.Values(q.ctx, unique, cc)
		if err != nil {
			return nil, err
		}
		if len(out) != len(unique) {
			return nil, errs.Configurationf("computed field %s returned %d values for %d records", path, len(out), len(unique))
		}
		slog.Debug("computed field", "collection", owner.Name(), "path", path, "records", len(partials), "distinct", len(unique))
		return out, nil
	})
	if err != nil {
		return err
	}
	q.paths = append(q.paths, path)
	q.flats = append(q.flats, computed)
	return nil
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	usesComputed := false
	for _, path := range a.Projection() {
		if _, _, ok := c.lookup(path); ok {
			usesComputed = true
			break
		}
	}
	if !usesComputed {
		return c.Collection.Aggregate(ctx, caller, f, a, limit)
	}
	records, err := c.List(ctx, caller, f.Paginated(), a.Projection())
	if err != nil {
		return nil, err
	}
	return a.Apply(records, f.Location(), limit)
}
