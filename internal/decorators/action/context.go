package action

import (
	"context"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// FormValues holds the values typed in an action form and remembers which
// ones were read, so the front end knows which fields to watch.
type FormValues struct {
	values map[string]any
	used   map[string]struct{}
}

func newFormValues(values map[string]any) *FormValues {
	v := &FormValues{values: map[string]any{}, used: map[string]struct{}{}}
	for k, value := range values {
		v.values[k] = value
	}
	return v
}

// Get returns the value of a form field.
func (v *FormValues) Get(label string) any {
	v.used[label] = struct{}{}
	return v.values[label]
}

func (v *FormValues) isUsed(label string) bool {
	_, ok := v.used[label]
	return ok
}

// Context is handed to action handlers and dynamic form fields.
type Context struct {
	*decorators.CustomizationContext
	FormValues *FormValues
	Filter     filter.Filter
	Scope      schema.ActionScope
}

// Records lists the records the action runs on.
func (ac *Context) Records(ctx context.Context, p projection.Projection) ([]collection.Record, error) {
	return ac.Collection.List(ctx, ac.Caller, ac.Filter.Paginated(), p)
}

// RecordIDs returns the primary key values of the selected records.
func (ac *Context) RecordIDs(ctx context.Context) ([][]any, error) {
	p, err := projection.New().WithPks(collection.Source(ac.Collection))
	if err != nil {
		return nil, err
	}
	records, err := ac.Records(ctx, p)
	if err != nil {
		return nil, err
	}
	pks := schema.PrimaryKeys(ac.Collection.Schema())
	out := make([][]any, len(records))
	for i, r := range records {
		id := make([]any, len(pks))
		for j, pk := range pks {
			id[j] = r[pk]
		}
		out[i] = id
	}
	return out, nil
}

// Record returns the single record a Single action runs on, or nil.
func (ac *Context) Record(ctx context.Context, p projection.Projection) (collection.Record, error) {
	if ac.Scope != schema.ScopeSingle {
		return nil, errs.Configurationf("Record is only available to single actions")
	}
	records, err := ac.Records(ctx, p)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}
