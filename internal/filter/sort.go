package filter

import (
	"slices"
	"sort"
	"strings"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
)

// Clause orders records by one field path.
type Clause struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

// Sort is an ordered list of clauses. The first clause is the primary key
// of the ordering.
type Sort []Clause

// NewSort builds a sort from clauses.
func NewSort(clauses ...Clause) Sort { return Sort(clauses) }

// Projection lists the sorted fields.
func (s Sort) Projection() projection.Projection {
	paths := make([]string, len(s))
	for i, c := range s {
		paths[i] = c.Field
	}
	return projection.New(paths...)
}

// ReplaceClauses maps every clause to zero or more clauses.
func (s Sort) ReplaceClauses(fn func(Clause) Sort) Sort {
	if s == nil {
		return nil
	}
	out := make(Sort, 0, len(s))
	for _, c := range s {
		out = append(out, fn(c)...)
	}
	return out
}

// Nest prefixes every field with "prefix:".
func (s Sort) Nest(prefix string) Sort {
	if prefix == "" {
		return s
	}
	return s.ReplaceClauses(func(c Clause) Sort {
		return Sort{{Field: prefix + ":" + c.Field, Ascending: c.Ascending}}
	})
}

// Unnest strips the relation prefix shared by every clause.
func (s Sort) Unnest() (Sort, error) {
	if len(s) == 0 {
		return s, nil
	}
	prefix, _, _ := strings.Cut(s[0].Field, ":")
	out := make(Sort, len(s))
	for i, c := range s {
		rest, ok := strings.CutPrefix(c.Field, prefix+":")
		if !ok {
			return nil, errs.Configurationf("cannot unnest sort: %q does not start with %q", c.Field, prefix)
		}
		out[i] = Clause{Field: rest, Ascending: c.Ascending}
	}
	return out, nil
}

// Inverse flips the direction of every clause.
func (s Sort) Inverse() Sort {
	return s.ReplaceClauses(func(c Clause) Sort {
		return Sort{{Field: c.Field, Ascending: !c.Ascending}}
	})
}

// Equal compares clause lists.
func (s Sort) Equal(other Sort) bool { return slices.Equal(s, other) }

// Apply sorts a copy of records. Ties keep their input order and nil sorts
// before every other value.
func (s Sort) Apply(records []map[string]any) []map[string]any {
	out := slices.Clone(records)
	if len(s) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, c := range s {
			cmp, _ := ir.Compare(ir.FieldValue(out[i], c.Field), ir.FieldValue(out[j], c.Field))
			if cmp == 0 {
				continue
			}
			if c.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	return out
}
