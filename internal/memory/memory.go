package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Datasource holds memory collections.
type Datasource struct {
	*collection.BaseDatasource
}

// NewDatasource returns an empty datasource.
func NewDatasource() *Datasource {
	return &Datasource{BaseDatasource: collection.NewBaseDatasource()}
}

// Collection stores rows of one collection.
type Collection struct {
	collection.BaseCollection

	mu     sync.RWMutex
	rows   []collection.Record
	nextID int
}

// NewCollection declares a collection on ds.
func NewCollection(ds *Datasource, name string, fields map[string]schema.Field) (*Collection, error) {
	c := &Collection{BaseCollection: collection.NewBaseCollection(name, ds), nextID: 1}
	if err := c.AddFields(fields); err != nil {
		return nil, err
	}
	if err := ds.AddCollection(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Seed inserts rows as given, bypassing defaults and key generation.
func (c *Collection) Seed(rows ...collection.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rows {
		c.rows = append(c.rows, ir.CloneRecord(r))
		c.bumpID(r)
	}
}

// Len returns the number of stored rows.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

func (c *Collection) bumpID(r collection.Record) {
	for _, pk := range schema.PrimaryKeys(c.Schema()) {
		if f, ok := ir.ToFloat(r[pk]); ok && int(f) >= c.nextID {
			c.nextID = int(f) + 1
		}
	}
}

func (c *Collection) snapshot() []collection.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]collection.Record, len(c.rows))
	for i, r := range c.rows {
		out[i] = ir.CloneRecord(r)
	}
	return out
}

func (c *Collection) evaluation(f filter.Filter) condtree.Evaluation {
	return condtree.Evaluation{Source: collection.Source(c), Location: f.Location()}
}

// matching returns the stored rows matching f, joined with the relations
// listed in extra and in the condition tree.
func (c *Collection) matching(ctx context.Context, caller *collection.Caller, f filter.Filter, extra projection.Projection) ([]collection.Record, error) {
	if f.Search != "" {
		return nil, errs.Unprocessablef("collection %q does not support search", c.Name())
	}
	if f.Segment != "" {
		return nil, errs.Unprocessablef("collection %q does not support segments", c.Name())
	}
	rows := c.snapshot()
	needed := extra
	if f.ConditionTree != nil {
		needed = needed.Union(f.ConditionTree.Projection())
	}
	if err := collection.Join(ctx, caller, c, rows, needed.Relations()); err != nil {
		return nil, err
	}
	return condtree.Filter(f.ConditionTree, rows, c.evaluation(f))
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	rows, err := c.matching(ctx, caller, f.Filter, p.Union(f.Sort.Projection()))
	if err != nil {
		return nil, err
	}
	rows = f.Sort.Apply(rows)
	if f.Page != nil {
		rows = f.Page.Apply(rows)
	}
	return p.Apply(rows), nil
}

func (c *Collection) Create(_ context.Context, _ *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	s := c.Schema()
	out := make([]collection.Record, 0, len(records))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		row := collection.Record{}
		for _, name := range s.FieldNames() {
			col, ok := s.Fields[name].(schema.Column)
			if !ok {
				continue
			}
			v, present := r[name]
			switch {
			case present:
				row[name] = v
			case col.IsPrimaryKey:
				row[name] = c.generateKey(col)
			default:
				row[name] = col.DefaultValue
			}
		}
		for k := range r {
			if !schema.IsColumn(s.Fields[k]) {
				return nil, errs.Validationf("unknown column %q in collection %q", k, c.Name())
			}
		}
		c.rows = append(c.rows, row)
		c.bumpID(row)
		out = append(out, ir.CloneRecord(row))
	}
	slog.Debug("memory create", "collection", c.Name(), "count", len(out))
	return out, nil
}

func (c *Collection) generateKey(col schema.Column) any {
	switch col.ColumnType {
	case schema.TypeUUID:
		return uuid.Must(uuid.NewV7()).String()
	case schema.TypeNumber:
		id := c.nextID
		c.nextID++
		return id
	}
	return nil
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	s := c.Schema()
	for k := range patch {
		if !schema.IsColumn(s.Fields[k]) {
			return errs.Validationf("unknown column %q in collection %q", k, c.Name())
		}
	}
	keys, err := c.matchingKeys(ctx, caller, f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if _, ok := keys[c.rowKey(row)]; !ok {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
	}
	return nil
}

func (c *Collection) Delete(ctx context.Context, caller *collection.Caller, f filter.Filter) error {
	keys, err := c.matchingKeys(ctx, caller, f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = slices.DeleteFunc(c.rows, func(row collection.Record) bool {
		_, ok := keys[c.rowKey(row)]
		return ok
	})
	return nil
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	rows, err := c.matching(ctx, caller, f, a.Projection())
	if err != nil {
		return nil, err
	}
	return a.Apply(rows, f.Location(), limit)
}

func (c *Collection) matchingKeys(ctx context.Context, caller *collection.Caller, f filter.Filter) (map[string]struct{}, error) {
	rows, err := c.matching(ctx, caller, f, nil)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		keys[c.rowKey(r)] = struct{}{}
	}
	return keys, nil
}

func (c *Collection) rowKey(r collection.Record) string {
	pks := schema.PrimaryKeys(c.Schema())
	id := make([]any, len(pks))
	for i, pk := range pks {
		id[i] = r[pk]
	}
	return ir.MustValueKey(id)
}

// FromSchemas builds a datasource with one empty collection per schema.
func FromSchemas(schemas map[string]schema.CollectionSchema) (*Datasource, error) {
	ds := NewDatasource()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s := schemas[name]
		c, err := NewCollection(ds, name, s.Fields)
		if err != nil {
			return nil, err
		}
		c.SetSearchable(s.Searchable)
		c.SetCountable(s.Countable)
	}
	return ds, nil
}

// Collection returns the named memory collection.
func (d *Datasource) Collection(name string) (*Collection, error) {
	c, err := d.GetCollection(name)
	if err != nil {
		return nil, err
	}
	mc, ok := c.(*Collection)
	if !ok {
		return nil, errs.Configurationf("collection %q is not a memory collection", name)
	}
	return mc, nil
}
