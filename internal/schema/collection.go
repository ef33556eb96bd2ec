package schema

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/dstoolkit/internal/errs"
)

// ActionScope is where an action may be triggered.
type ActionScope string

const (
	ScopeSingle ActionScope = "Single"
	ScopeBulk   ActionScope = "Bulk"
	ScopeGlobal ActionScope = "Global"
)

// ActionSchema describes an action exposed by a collection.
type ActionSchema struct {
	Scope        ActionScope `json:"scope"`
	GenerateFile bool        `json:"generate_file"`
	StaticForm   bool        `json:"static_form"`
}

// CollectionSchema is the capability advertisement of a collection.
type CollectionSchema struct {
	Fields     map[string]Field        `json:"-"`
	Actions    map[string]ActionSchema `json:"actions"`
	Charts     []string                `json:"charts"`
	Segments   []string                `json:"segments"`
	Searchable bool                    `json:"searchable"`
	Countable  bool                    `json:"countable"`
}

// NewCollectionSchema returns an empty, countable schema.
func NewCollectionSchema() CollectionSchema {
	return CollectionSchema{
		Fields:    map[string]Field{},
		Actions:   map[string]ActionSchema{},
		Countable: true,
	}
}

// Clone returns a copy whose maps and slices can be modified without
// affecting s. Field values are copied; operator sets stay shared.
func (s CollectionSchema) Clone() CollectionSchema {
	c := s
	c.Fields = maps.Clone(s.Fields)
	if c.Fields == nil {
		c.Fields = map[string]Field{}
	}
	c.Actions = maps.Clone(s.Actions)
	if c.Actions == nil {
		c.Actions = map[string]ActionSchema{}
	}
	c.Charts = slices.Clone(s.Charts)
	c.Segments = slices.Clone(s.Segments)
	return c
}

// FieldNames returns field names in sorted order.
func (s CollectionSchema) FieldNames() []string {
	names := slices.Collect(maps.Keys(s.Fields))
	sort.Strings(names)
	return names
}

type schemaJSON struct {
	Fields     map[string]json.RawMessage `json:"fields"`
	Actions    map[string]ActionSchema    `json:"actions"`
	Charts     []string                   `json:"charts"`
	Segments   []string                   `json:"segments"`
	Searchable bool                       `json:"searchable"`
	Countable  bool                       `json:"countable"`
}

// MarshalJSON writes the schema with discriminated fields.
func (s CollectionSchema) MarshalJSON() ([]byte, error) {
	out := schemaJSON{
		Fields:     make(map[string]json.RawMessage, len(s.Fields)),
		Actions:    s.Actions,
		Charts:     s.Charts,
		Segments:   s.Segments,
		Searchable: s.Searchable,
		Countable:  s.Countable,
	}
	for name, f := range s.Fields {
		raw, err := MarshalField(f)
		if err != nil {
			return nil, err
		}
		out.Fields[name] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a schema written by MarshalJSON.
func (s *CollectionSchema) UnmarshalJSON(data []byte) error {
	var in schemaJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := NewCollectionSchema()
	for name, raw := range in.Fields {
		f, err := UnmarshalField(raw)
		if err != nil {
			return errs.Configurationf("field %q: %v", name, err)
		}
		out.Fields[name] = f
	}
	if in.Actions != nil {
		out.Actions = in.Actions
	}
	out.Charts = in.Charts
	out.Segments = in.Segments
	out.Searchable = in.Searchable
	out.Countable = in.Countable
	*s = out
	return nil
}

// Source gives read access to a collection's schema and to its siblings
// within the same datasource. Path resolution, projections and in-memory
// matching use it to walk relations.
type Source interface {
	Name() string
	Schema() CollectionSchema
	Sibling(name string) (Source, error)
}

// PrimaryKeys returns the primary key column names in sorted order.
func PrimaryKeys(s CollectionSchema) []string {
	var pks []string
	for name, f := range s.Fields {
		if c, ok := f.(Column); ok && c.IsPrimaryKey {
			pks = append(pks, name)
		}
	}
	sort.Strings(pks)
	return pks
}

// IsPrimaryKey reports whether name is a primary key column.
func IsPrimaryKey(s CollectionSchema, name string) bool {
	c, ok := s.Fields[name].(Column)
	return ok && c.IsPrimaryKey
}

// IsForeignKey reports whether name is used as the foreign key of a
// many-to-one relation.
func IsForeignKey(s CollectionSchema, name string) bool {
	for _, f := range s.Fields {
		if r, ok := f.(ManyToOne); ok && r.ForeignKey == name {
			return true
		}
	}
	return false
}

// SplitPath splits "a:b:c" into "a" and "b:c".
func SplitPath(path string) (head, rest string) {
	head, rest, _ = strings.Cut(path, ":")
	return head, rest
}

// FieldAt resolves a path through relations and returns the addressed field.
func FieldAt(src Source, path string) (Field, error) {
	head, rest := SplitPath(path)
	f, ok := src.Schema().Fields[head]
	if !ok {
		return nil, errs.NotFoundf("field %q not found in collection %q", head, src.Name())
	}
	if rest == "" {
		return f, nil
	}
	foreign, ok := ForeignCollection(f)
	if !ok || !IsManyToOneLike(f) {
		return nil, errs.Configurationf("unexpected field type %s for path %q in collection %q", f.FieldType(), path, src.Name())
	}
	next, err := src.Sibling(foreign)
	if err != nil {
		return nil, err
	}
	return FieldAt(next, rest)
}

// ColumnAt resolves a path that must end on a column.
func ColumnAt(src Source, path string) (Column, error) {
	f, err := FieldAt(src, path)
	if err != nil {
		return Column{}, err
	}
	c, ok := f.(Column)
	if !ok {
		return Column{}, errs.Configurationf("field %q of collection %q is a %s, not a column", path, src.Name(), f.FieldType())
	}
	return c, nil
}

// SourceAt returns the collection addressed by the relation prefix of path
// along with the remaining column path.
func SourceAt(src Source, path string) (Source, string, error) {
	head, rest := SplitPath(path)
	if rest == "" {
		return src, head, nil
	}
	f, ok := src.Schema().Fields[head]
	if !ok {
		return nil, "", errs.NotFoundf("relation %q not found in collection %q", head, src.Name())
	}
	foreign, ok := ForeignCollection(f)
	if !ok {
		return nil, "", errs.Configurationf("field %q of collection %q is not a relation", head, src.Name())
	}
	next, err := src.Sibling(foreign)
	if err != nil {
		return nil, "", err
	}
	return SourceAt(next, rest)
}
