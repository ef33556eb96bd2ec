// Package projection models the set of field paths a caller asks for.
package projection

import (
	"slices"
	"strings"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Projection is an ordered, deduplicated list of paths. A path is a column
// name or "relation:subpath".
type Projection []string

// New builds a projection, dropping duplicate paths.
func New(paths ...string) Projection {
	out := make(Projection, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Contains reports whether path is part of p.
func (p Projection) Contains(path string) bool {
	return slices.Contains(p, path)
}

// Equals compares projections as sets.
func (p Projection) Equals(other Projection) bool {
	a, b := New(p...), New(other...)
	if len(a) != len(b) {
		return false
	}
	for _, path := range a {
		if !b.Contains(path) {
			return false
		}
	}
	return true
}

// Columns returns paths without a relation prefix.
func (p Projection) Columns() []string {
	var out []string
	for _, path := range p {
		if !strings.Contains(path, ":") {
			out = append(out, path)
		}
	}
	return out
}

// RelationNames returns the relation prefixes in order of first appearance.
func (p Projection) RelationNames() []string {
	var out []string
	for _, path := range p {
		head, rest, ok := strings.Cut(path, ":")
		if ok && rest != "" && !slices.Contains(out, head) {
			out = append(out, head)
		}
	}
	return out
}

// Relations groups relation paths by their first segment.
func (p Projection) Relations() map[string]Projection {
	out := map[string]Projection{}
	for _, path := range p {
		head, rest, ok := strings.Cut(path, ":")
		if ok {
			out[head] = append(out[head], rest)
		}
	}
	for name, sub := range out {
		out[name] = New(sub...)
	}
	return out
}

// Union returns p followed by every new path of others.
func (p Projection) Union(others ...Projection) Projection {
	all := slices.Clone([]string(p))
	for _, o := range others {
		all = append(all, o...)
	}
	return New(all...)
}

// Replace maps each path to zero or more paths and flattens the result.
func (p Projection) Replace(fn func(path string) []string) Projection {
	var all []string
	for _, path := range p {
		all = append(all, fn(path)...)
	}
	return New(all...)
}

// Nest prefixes every path with prefix. An empty prefix is a no-op.
func (p Projection) Nest(prefix string) Projection {
	if prefix == "" {
		return p
	}
	out := make(Projection, len(p))
	for i, path := range p {
		out[i] = prefix + ":" + path
	}
	return out
}

// Unnest strips the common relation prefix. Every path must share it.
func (p Projection) Unnest() (Projection, error) {
	if len(p) == 0 {
		return p, nil
	}
	prefix, _, _ := strings.Cut(p[0], ":")
	out := make(Projection, len(p))
	for i, path := range p {
		rest, ok := strings.CutPrefix(path, prefix+":")
		if !ok {
			return nil, errs.Configurationf("cannot unnest projection %v", []string(p))
		}
		out[i] = rest
	}
	return out, nil
}

// WithPks adds the primary keys of the collection and, recursively, of every
// relation the projection traverses.
func (p Projection) WithPks(src schema.Source) (Projection, error) {
	s := src.Schema()
	result := New(p...)
	for _, pk := range schema.PrimaryKeys(s) {
		if !result.Contains(pk) {
			result = append(result, pk)
		}
	}
	relations := p.Relations()
	for _, name := range p.RelationNames() {
		f, ok := s.Fields[name]
		if !ok {
			return nil, errs.NotFoundf("relation %q not found in collection %q", name, src.Name())
		}
		if _, poly := f.(schema.PolymorphicManyToOne); poly {
			continue
		}
		foreign, ok := schema.ForeignCollection(f)
		if !ok {
			return nil, errs.Configurationf("field %q of collection %q is not a relation", name, src.Name())
		}
		target, err := src.Sibling(foreign)
		if err != nil {
			return nil, err
		}
		sub, err := relations[name].WithPks(target)
		if err != nil {
			return nil, err
		}
		for _, path := range sub.Nest(name) {
			if !result.Contains(path) {
				result = append(result, path)
			}
		}
	}
	return result, nil
}

// Apply prunes each record to the projection's shape. Nil records are dropped.
func (p Projection) Apply(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if projected := p.reproject(r); projected != nil {
			out = append(out, projected)
		}
	}
	return out
}

func (p Projection) reproject(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for _, col := range p.Columns() {
		if v, ok := record[col]; ok {
			out[col] = v
		}
	}
	relations := p.Relations()
	for name, sub := range relations {
		nested, _ := record[name].(map[string]any)
		if projected := sub.reproject(nested); projected != nil {
			out[name] = projected
		} else {
			out[name] = nil
		}
	}
	return out
}

// All returns every column of the collection plus the columns of its
// many-to-one and one-to-one relations, one level deep.
func All(src schema.Source) (Projection, error) {
	return all(src, "", true)
}

func all(src schema.Source, prefix string, nested bool) (Projection, error) {
	s := src.Schema()
	var out []string
	for _, name := range s.FieldNames() {
		switch f := s.Fields[name].(type) {
		case schema.Column:
			out = append(out, prefix+name)
		case schema.PolymorphicManyToOne:
			if nested {
				out = append(out, prefix+name+":*")
			}
		default:
			if !nested || !schema.IsManyToOneLike(f) {
				continue
			}
			foreign, _ := schema.ForeignCollection(f)
			target, err := src.Sibling(foreign)
			if err != nil {
				return nil, err
			}
			sub, err := all(target, name+":", false)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return New(out...), nil
}
