package collection

import (
	"context"
	"time"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Record is a row keyed by field name. Relations nest as Record values.
type Record = map[string]any

// Caller identifies the user a request runs for.
type Caller struct {
	ID        int
	Email     string
	FirstName string
	LastName  string
	Team      string
	Role      string
	Tags      map[string]string
	Timezone  *time.Location
}

// Location returns the caller timezone, UTC when unset.
func (c *Caller) Location() *time.Location {
	if c == nil || c.Timezone == nil {
		return time.UTC
	}
	return c.Timezone
}

// Collection is one table-like set of records behind a schema.
//
// Implementations must not retain the slices and maps passed to them and
// must not mutate records after returning them.
type Collection interface {
	Name() string
	Schema() schema.CollectionSchema
	Datasource() Datasource

	List(ctx context.Context, caller *Caller, f filter.PaginatedFilter, p projection.Projection) ([]Record, error)
	Create(ctx context.Context, caller *Caller, records []Record) ([]Record, error)
	Update(ctx context.Context, caller *Caller, f filter.Filter, patch Record) error
	Delete(ctx context.Context, caller *Caller, f filter.Filter) error

	// Aggregate returns at most limit rows. limit <= 0 means no limit.
	Aggregate(ctx context.Context, caller *Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error)

	Execute(ctx context.Context, caller *Caller, action string, data Record, f filter.Filter) (ActionResult, error)
	GetForm(ctx context.Context, caller *Caller, action string, data Record, f filter.Filter) ([]ActionField, error)
	RenderChart(ctx context.Context, caller *Caller, chart string, recordID []any) (Chart, error)
}

// DatasourceSchema lists datasource-level capabilities.
type DatasourceSchema struct {
	Charts []string `json:"charts"`
}

// Datasource groups collections that may reference each other by name.
type Datasource interface {
	Collections() []Collection
	GetCollection(name string) (Collection, error)
	Schema() DatasourceSchema
	RenderChart(ctx context.Context, caller *Caller, chart string) (Chart, error)
}

// SchemaNotifier is implemented by collections whose schema can change after
// construction. Listeners run synchronously after every change.
type SchemaNotifier interface {
	OnSchemaDirty(fn func())
}

// Source adapts c to schema.Source so path helpers can walk its relations.
func Source(c Collection) schema.Source { return source{c} }

type source struct{ c Collection }

func (s source) Name() string                     { return s.c.Name() }
func (s source) Schema() schema.CollectionSchema { return s.c.Schema() }

func (s source) Sibling(name string) (schema.Source, error) {
	other, err := s.c.Datasource().GetCollection(name)
	if err != nil {
		return nil, err
	}
	return source{other}, nil
}
