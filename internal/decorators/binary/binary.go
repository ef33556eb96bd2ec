// Package binary publishes Binary columns as strings, either as data URIs
// or as lowercase hex.
package binary

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Mode selects the string encoding of a binary column.
type Mode string

const (
	DataURI Mode = "datauri"
	Hex     Mode = "hex"
)

var convertedOperators = schema.NewOperatorSet(
	schema.OpAfter, schema.OpBefore, schema.OpContains, schema.OpEndsWith,
	schema.OpEqual, schema.OpGreaterThan, schema.OpNotIn, schema.OpLessThan,
	schema.OpNotContains, schema.OpNotEqual, schema.OpStartsWith, schema.OpIn,
)

type Collection struct {
	*decorators.Collection

	ds    *decorators.Datasource[*Collection]
	modes map[string]Mode
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	var ds *decorators.Datasource[*Collection]
	ds = decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		b := &Collection{modes: map[string]Mode{}}
		b.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: b.refineSchema, RefineFilter: b.refineFilter})
		return b
	})
	ds.Each(func(b *Collection) { b.ds = ds })
	return ds
}

// SetBinaryMode chooses how a binary column is published.
func (c *Collection) SetBinaryMode(name string, mode Mode) error {
	f, ok := c.Child().Schema().Fields[name]
	if !ok {
		return errs.NotFoundf("no such field %s.%s", c.Name(), name)
	}
	if mode != DataURI && mode != Hex {
		return errs.Configurationf("invalid binary mode %q", mode)
	}
	col, isCol := f.(schema.Column)
	if !isCol || col.ColumnType != schema.TypeBinary {
		return errs.Configurationf("expected a binary field, got %s.%s", c.Name(), name)
	}
	c.modes[name] = mode
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) isBinary(name string) bool {
	col, ok := c.Child().Schema().Fields[name].(schema.Column)
	return ok && col.ColumnType == schema.TypeBinary
}

// useHex defaults to hex for keys so identifiers stay readable in URLs.
func (c *Collection) useHex(name string) bool {
	if m, ok := c.modes[name]; ok {
		return m == Hex
	}
	s := c.Child().Schema()
	return schema.IsPrimaryKey(s, name) || schema.IsForeignKey(s, name)
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, f := range s.Fields {
		col, ok := f.(schema.Column)
		if !ok || col.ColumnType != schema.TypeBinary {
			continue
		}
		col.ColumnType = schema.TypeString
		col.Validations = c.validations(name, col.Validations)
		s.Fields[name] = col
	}
	return s
}

func (c *Collection) validations(name string, child []schema.Validation) []schema.Validation {
	var out []schema.Validation
	find := func(op schema.Operator) (int, bool) {
		for _, v := range child {
			if v.Operator == op {
				n, ok := v.Value.(int)
				return n, ok
			}
		}
		return 0, false
	}
	if c.useHex(name) {
		out = append(out, schema.Validation{Operator: schema.OpMatch, Value: `^[0-9a-f]+$`})
		if n, ok := find(schema.OpLongerThan); ok {
			out = append(out, schema.Validation{Operator: schema.OpLongerThan, Value: n*2 + 1})
		}
		if n, ok := find(schema.OpShorterThan); ok {
			out = append(out, schema.Validation{Operator: schema.OpShorterThan, Value: n*2 - 1})
		}
	} else {
		out = append(out, schema.Validation{Operator: schema.OpMatch, Value: `^data:.*;base64,.*`})
	}
	for _, v := range child {
		if v.Operator == schema.OpPresent {
			out = append(out, schema.Validation{Operator: schema.OpPresent})
			break
		}
	}
	return out
}

func (c *Collection) refineFilter(_ context.Context, _ *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if f.ConditionTree == nil {
		return f, nil
	}
	tree, err := f.ConditionTree.ReplaceErr(c.convertLeaf)
	if err != nil {
		return f, err
	}
	return f.WithConditionTree(tree), nil
}

func (c *Collection) convertLeaf(l condtree.Leaf) (condtree.Tree, error) {
	head, rest := schema.SplitPath(l.Field)
	if rest != "" {
		foreign, err := c.foreign(head)
		if err != nil {
			return nil, err
		}
		sub, err := foreign.convertLeaf(l.ReplaceField(rest))
		if err != nil {
			return nil, err
		}
		return sub.Nest(head), nil
	}
	if !convertedOperators.Has(l.Operator) {
		return l, nil
	}
	v, err := c.convertValue(true, head, l.Value)
	if err != nil {
		return nil, err
	}
	return l.Override(l.Operator, v), nil
}

func (c *Collection) foreign(relation string) (*Collection, error) {
	name, ok := schema.ForeignCollection(c.Child().Schema().Fields[relation])
	if !ok {
		return nil, errs.NotFoundf("no such relation %s.%s", c.Name(), relation)
	}
	return c.ds.Decorated(name)
}

func (c *Collection) convertRecord(toBackend bool, r collection.Record) (collection.Record, error) {
	if r == nil {
		return nil, nil
	}
	out := make(collection.Record, len(r))
	for k, v := range r {
		converted, err := c.convertPath(toBackend, k, v)
		if err != nil {
			return nil, err
		}
		out[k] = converted
	}
	return out, nil
}

func (c *Collection) convertPath(toBackend bool, path string, v any) (any, error) {
	head, rest := schema.SplitPath(path)
	f := c.Child().Schema().Fields[head]
	if _, isCol := f.(schema.Column); isCol || f == nil {
		return c.convertValue(toBackend, head, v)
	}
	foreign, err := c.foreign(head)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return foreign.convertPath(toBackend, rest, v)
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	return foreign.convertRecord(toBackend, sub)
}

func (c *Collection) convertValue(toBackend bool, name string, v any) (any, error) {
	if v == nil || !c.isBinary(name) {
		return v, nil
	}
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, e := range list {
			converted, err := c.convertValue(toBackend, name, e)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}
	if toBackend {
		b, err := Decode(v, c.useHex(name))
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return Encode(v, c.useHex(name)), nil
}

// Decode turns a published string back into bytes.
func Decode(v any, useHex bool) ([]byte, error) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		return t, nil
	default:
		return nil, errs.Validationf("expected a string for a binary value, got %T", v)
	}
	if useHex {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, errs.Validationf("invalid hex value %q", s)
		}
		return b, nil
	}
	_, payload, ok := strings.Cut(s, "base64,")
	if !ok {
		return nil, errs.Validationf("invalid data uri")
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errs.Validationf("invalid data uri payload")
	}
	return b, nil
}

// Encode publishes bytes as hex or as a data URI with a sniffed mime type.
func Encode(v any, useHex bool) string {
	var b []byte
	switch t := v.(type) {
	case []byte:
		b = t
	case string:
		b = []byte(t)
	default:
		return ""
	}
	if useHex {
		return hex.EncodeToString(b)
	}
	mime, _, _ := strings.Cut(http.DetectContentType(b), ";")
	if mime == "text/plain" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	records, err := c.Collection.List(ctx, caller, f, p)
	if err != nil {
		return nil, err
	}
	return c.convertAll(false, records)
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	in, err := c.convertAll(true, records)
	if err != nil {
		return nil, err
	}
	created, err := c.Collection.Create(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	return c.convertAll(false, created)
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	converted, err := c.convertRecord(true, patch)
	if err != nil {
		return err
	}
	return c.Collection.Update(ctx, caller, f, converted)
}

func (c *Collection) Aggregate(ctx context.Context, caller *collection.Caller, f filter.Filter, a aggregation.Aggregation, limit int) ([]aggregation.Result, error) {
	results, err := c.Collection.Aggregate(ctx, caller, f, a, limit)
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		for k, v := range r.Group {
			converted, err := c.convertPath(false, k, v)
			if err != nil {
				return nil, err
			}
			results[i].Group[k] = converted
		}
	}
	return results, nil
}

func (c *Collection) convertAll(toBackend bool, records []collection.Record) ([]collection.Record, error) {
	out := make([]collection.Record, len(records))
	for i, r := range records {
		converted, err := c.convertRecord(toBackend, r)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}
