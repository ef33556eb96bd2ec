package write

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Action is the write operation a handler runs for.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Context is handed to write handlers. Record is the patch being
// rewritten; Filter is only set for updates.
type Context struct {
	*decorators.CustomizationContext
	Action Action
	Record collection.Record
	Filter filter.Filter
}

// Handler turns the value written to a column into a patch. The patch may
// set the column itself, other columns or nested relations. A nil patch
// writes nothing.
type Handler func(ctx context.Context, value any, wc *Context) (collection.Record, error)

// Collection rewrites incoming patches with the registered handlers.
type Collection struct {
	*decorators.Collection

	ds       *decorators.Datasource[*Collection]
	handlers map[string]Handler
}

// ReplaceFieldWriting registers the handler of a column. A nil handler makes
// the column read-only.
func (c *Collection) ReplaceFieldWriting(name string, h Handler) error {
	field, ok := c.Schema().Fields[name]
	if !ok {
		return errs.NotFoundf("field %q not found in %s", name, c.Name())
	}
	if !schema.IsColumn(field) {
		return errs.Configurationf("only columns can have their writing replaced, %s.%s is a %s", c.Name(), name, field.FieldType())
	}
	c.handlers[name] = h
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, h := range c.handlers {
		if col, ok := s.Fields[name].(schema.Column); ok {
			col.IsReadOnly = h == nil
			s.Fields[name] = col
		}
	}
	return s
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	patches := make([]collection.Record, len(records))
	for i, r := range records {
		p, err := c.rewritePatch(ctx, caller, ActionCreate, r, nil, filter.Filter{})
		if err != nil {
			return nil, err
		}
		patches[i] = p
	}
	return c.Collection.Create(ctx, caller, patches)
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	p, err := c.rewritePatch(ctx, caller, ActionUpdate, patch, nil, f)
	if err != nil {
		return err
	}
	return c.Collection.Update(ctx, caller, f, p)
}

// rewritePatch applies the handler of every field of patch and merges the
// results. used lists the fields being expanded, outermost first.
func (c *Collection) rewritePatch(ctx context.Context, caller *collection.Caller, action Action, patch collection.Record, used []string, f filter.Filter) (collection.Record, error) {
	wc := &Context{CustomizationContext: decorators.NewContext(c, caller), Action: action, Record: patch, Filter: f}
	keys := slices.Sorted(maps.Keys(patch))
	patches := make([]collection.Record, 0, len(keys))
	for _, key := range keys {
		p, err := c.rewriteKey(ctx, wc, key, used)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	merged, err := deepMerge(patches...)
	if err != nil {
		return nil, err
	}
	if len(merged) > 0 {
		if err := c.validate(merged); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (c *Collection) rewriteKey(ctx context.Context, wc *Context, key string, used []string) (collection.Record, error) {
	if slices.Contains(used, key) {
		return nil, errs.Cyclef("Cycle detected: %s.", strings.Join(used, " -> "))
	}
	switch field := c.Schema().Fields[key].(type) {
	case schema.Column:
		value := wc.Record[key]
		h, ok := c.handlers[key]
		if !ok || h == nil {
			return collection.Record{key: value}, nil
		}
		patch, err := h(ctx, value, wc)
		if err != nil {
			return nil, err
		}
		patch = maps.Clone(patch)
		if patch == nil {
			patch = collection.Record{}
		}
		own, isSet := patch[key]
		delete(patch, key)
		rest, err := c.rewritePatch(ctx, wc.Caller, wc.Action, patch, append(slices.Clone(used), key), wc.Filter)
		if err != nil {
			return nil, err
		}
		if !isSet {
			return rest, nil
		}
		return deepMerge(collection.Record{key: own}, rest)
	case schema.ManyToOne, schema.OneToOne:
		foreignName, _ := schema.ForeignCollection(field)
		foreign, err := c.ds.Decorated(foreignName)
		if err != nil {
			return nil, err
		}
		if wc.Record[key] == nil {
			return collection.Record{key: nil}, nil
		}
		sub, ok := wc.Record[key].(map[string]any)
		if !ok {
			return nil, errs.Validationf("%s.%s expects a nested record", c.Name(), key)
		}
		rewritten, err := foreign.rewritePatch(ctx, wc.Caller, wc.Action, sub, nil, filter.Filter{})
		if err != nil {
			return nil, err
		}
		return collection.Record{key: rewritten}, nil
	}
	return nil, errs.NotFoundf("unknown field %q in %s", key, c.Name())
}

// validate checks that handlers produced values the schema accepts.
func (c *Collection) validate(record collection.Record) error {
	s := c.Schema()
	for key, value := range record {
		switch field := s.Fields[key].(type) {
		case schema.Column:
			if err := schema.ValidateColumnValue(key, field, value); err != nil {
				return err
			}
		case schema.ManyToOne, schema.OneToOne:
			foreignName, _ := schema.ForeignCollection(field)
			foreign, err := c.ds.Decorated(foreignName)
			if err != nil {
				return err
			}
			if value == nil {
				continue
			}
			sub, ok := value.(map[string]any)
			if !ok {
				return errs.Validationf("%s.%s expects a nested record", c.Name(), key)
			}
			if err := foreign.validate(sub); err != nil {
				return err
			}
		default:
			return errs.Validationf("unknown field %q in %s", key, c.Name())
		}
	}
	return nil
}

// deepMerge merges patches, recursing into nested records. Two patches
// setting the same value is a conflict.
func deepMerge(patches ...collection.Record) (collection.Record, error) {
	acc := collection.Record{}
	for _, patch := range patches {
		for key, value := range patch {
			existing := acc[key]
			if existing == nil {
				acc[key] = value
				continue
			}
			left, leftOK := existing.(map[string]any)
			right, rightOK := value.(map[string]any)
			if !leftOK || !rightOK {
				return nil, errs.Configurationf("conflict value on the field %q: it received several values", key)
			}
			merged, err := deepMerge(left, right)
			if err != nil {
				return nil, err
			}
			acc[key] = merged
		}
	}
	return acc, nil
}
