// Package sortemulate makes columns sortable when the child cannot sort
// them, either by sorting in memory or by substituting another sort.
package sortemulate

import (
	"context"
	"slices"
	"strings"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

type Collection struct {
	*decorators.Collection

	ds       *decorators.Datasource[*Collection]
	sorts    map[string]filter.Sort
	disabled map[string]struct{}
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	var ds *decorators.Datasource[*Collection]
	ds = decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		s := &Collection{sorts: map[string]filter.Sort{}, disabled: map[string]struct{}{}}
		s.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: s.refineSchema})
		return s
	})
	ds.Each(func(s *Collection) { s.ds = ds })
	return ds
}

// EmulateFieldSorting sorts the column in memory.
func (c *Collection) EmulateFieldSorting(name string) error {
	return c.replaceOrEmulate(name, nil)
}

// ReplaceFieldSorting sorts the column by an equivalent sort instead.
func (c *Collection) ReplaceFieldSorting(name string, equivalent filter.Sort) error {
	if len(equivalent) == 0 {
		return errs.Configurationf("a new sorting method should be provided to replace field sorting")
	}
	return c.replaceOrEmulate(name, equivalent)
}

// DisableFieldSorting advertises the column as not sortable.
func (c *Collection) DisableFieldSorting(name string) error {
	if err := c.validateColumn(name); err != nil {
		return err
	}
	c.disabled[name] = struct{}{}
	delete(c.sorts, name)
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) replaceOrEmulate(name string, equivalent filter.Sort) error {
	if err := c.validateColumn(name); err != nil {
		return err
	}
	c.sorts[name] = equivalent
	delete(c.disabled, name)
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) validateColumn(name string) error {
	f, ok := c.Child().Schema().Fields[name]
	if !ok {
		return errs.NotFoundf("no such field %s.%s", c.Name(), name)
	}
	if _, isCol := f.(schema.Column); !isCol {
		return errs.Configurationf("unexpected field type %s.%s: relations are sorted through their columns", c.Name(), name)
	}
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, f := range s.Fields {
		col, ok := f.(schema.Column)
		if !ok {
			continue
		}
		if _, emulated := c.sorts[name]; emulated {
			col.IsSortable = true
		}
		if _, off := c.disabled[name]; off {
			col.IsSortable = false
		}
		s.Fields[name] = col
	}
	return s
}

func (c *Collection) List(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter, p projection.Projection) ([]collection.Record, error) {
	childFilter := f
	if len(f.Sort) > 0 {
		sort, err := c.rewriteSort(f.Sort, nil)
		if err != nil {
			return nil, err
		}
		childFilter = f.WithSort(sort)
	}
	if !c.anyEmulated(childFilter.Sort) {
		return c.Collection.List(ctx, caller, childFilter, p)
	}

	src := collection.Source(c)
	refProjection, err := childFilter.Sort.Projection().WithPks(src)
	if err != nil {
		return nil, err
	}
	refs, err := c.Collection.List(ctx, caller, childFilter.WithSort(nil).WithPage(nil), refProjection)
	if err != nil {
		return nil, err
	}
	refs = childFilter.Sort.Apply(refs)
	if childFilter.Page != nil {
		refs = childFilter.Page.Apply(refs)
	}

	match, err := condtree.MatchRecords(c.Schema(), refs)
	if err != nil {
		return nil, err
	}
	withPks, err := p.WithPks(src)
	if err != nil {
		return nil, err
	}
	records, err := c.Collection.List(ctx, caller, filter.Filter{ConditionTree: match, Timezone: f.Timezone}.Paginated(), withPks)
	if err != nil {
		return nil, err
	}
	return p.Apply(c.sortLike(refs, records)), nil
}

// sortLike orders records by the position of their primary key in refs.
func (c *Collection) sortLike(refs, records []collection.Record) []collection.Record {
	pks := schema.PrimaryKeys(c.Schema())
	key := func(r collection.Record) string {
		parts := make([]string, len(pks))
		for i, pk := range pks {
			parts[i] = ir.ToString(r[pk])
		}
		return strings.Join(parts, "|")
	}
	position := make(map[string]int, len(refs))
	for i, r := range refs {
		position[key(r)] = i
	}
	slots := make([]collection.Record, len(refs))
	for _, r := range records {
		if i, ok := position[key(r)]; ok {
			slots[i] = r
		}
	}
	out := slots[:0]
	for _, r := range slots {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// rewriteSort expands replaced sorts. used holds the qualified fields already
// expanded on the current path.
func (c *Collection) rewriteSort(s filter.Sort, used []string) (filter.Sort, error) {
	var err error
	out := s.ReplaceClauses(func(cl filter.Clause) filter.Sort {
		rewritten, e := c.rewriteClause(cl, used)
		if e != nil && err == nil {
			err = e
		}
		return rewritten
	})
	return out, err
}

func (c *Collection) rewriteClause(cl filter.Clause, used []string) (filter.Sort, error) {
	head, rest := schema.SplitPath(cl.Field)
	if rest != "" {
		foreign, err := c.foreign(head)
		if err != nil {
			return nil, err
		}
		sub, err := foreign.rewriteClause(filter.Clause{Field: rest, Ascending: cl.Ascending}, used)
		if err != nil {
			return nil, err
		}
		return sub.Nest(head), nil
	}
	equivalent, ok := c.sorts[cl.Field]
	if !ok || equivalent == nil {
		return filter.Sort{cl}, nil
	}
	key := c.Name() + "." + cl.Field
	if slices.Contains(used, key) {
		return nil, errs.Cyclef("Cycle detected: %s.", strings.Join(append(slices.Clone(used), key), " -> "))
	}
	if !cl.Ascending {
		equivalent = equivalent.Inverse()
	}
	return c.rewriteSort(equivalent, append(slices.Clone(used), key))
}

func (c *Collection) anyEmulated(s filter.Sort) bool {
	for _, cl := range s {
		if c.isEmulated(cl.Field) {
			return true
		}
	}
	return false
}

func (c *Collection) isEmulated(path string) bool {
	head, rest := schema.SplitPath(path)
	if rest == "" {
		eq, ok := c.sorts[head]
		return ok && eq == nil
	}
	foreign, err := c.foreign(head)
	return err == nil && foreign.isEmulated(rest)
}

func (c *Collection) foreign(relation string) (*Collection, error) {
	name, ok := schema.ForeignCollection(c.Child().Schema().Fields[relation])
	if !ok {
		return nil, errs.NotFoundf("no such relation %s.%s", c.Name(), relation)
	}
	return c.ds.Decorated(name)
}
