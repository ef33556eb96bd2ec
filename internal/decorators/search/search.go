// Package search turns the free-text search of a filter into a condition
// tree for collections that cannot search natively.
package search

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Definition builds the condition tree for a search string.
type Definition func(ctx context.Context, search string, extended bool, cc *decorators.CustomizationContext) (condtree.Tree, error)

type Collection struct {
	*decorators.Collection

	replacer Definition
	disabled bool
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		s := &Collection{}
		s.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: s.refineSchema, RefineFilter: s.refineFilter})
		return s
	})
}

// ReplaceSearch installs a custom search behaviour.
func (c *Collection) ReplaceSearch(def Definition) {
	c.replacer = def
	c.disabled = false
	c.MarkSchemaAsDirty()
}

// DisableSearch hides the search bar and ignores search strings.
func (c *Collection) DisableSearch() {
	c.disabled = true
	c.MarkSchemaAsDirty()
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	s.Searchable = !c.disabled
	return s
}

func (c *Collection) refineFilter(ctx context.Context, caller *collection.Caller, f filter.PaginatedFilter) (filter.PaginatedFilter, error) {
	if strings.TrimSpace(f.Search) == "" || c.disabled {
		return f.WithSearch("", false), nil
	}
	if c.replacer == nil && c.Child().Schema().Searchable {
		return f, nil
	}

	var tree condtree.Tree
	if c.replacer != nil {
		var err error
		tree, err = c.replacer(ctx, f.Search, f.SearchExtended, decorators.NewContext(c, caller))
		if err != nil {
			return f, err
		}
	} else {
		tree = c.defaultTree(f.Search, f.SearchExtended)
	}
	return f.WithConditionTree(condtree.Intersect(f.ConditionTree, tree)).WithSearch("", false), nil
}

// defaultTree ORs one condition per searchable column. When no column can
// match the search string the result is MatchNone.
func (c *Collection) defaultTree(search string, extended bool) condtree.Tree {
	conditions := []condtree.Tree{}
	for _, sf := range c.searchableFields(extended) {
		if leaf := Condition(sf.path, sf.column, search); leaf != nil {
			conditions = append(conditions, leaf)
		}
	}
	if len(conditions) == 0 {
		return condtree.MatchNone()
	}
	return condtree.Union(conditions...)
}

type searchField struct {
	path   string
	column schema.Column
}

func (c *Collection) searchableFields(extended bool) []searchField {
	var out []searchField
	s := c.Child().Schema()
	for _, name := range s.FieldNames() {
		switch f := s.Fields[name].(type) {
		case schema.Column:
			out = append(out, searchField{name, f})
		case schema.ManyToOne, schema.OneToOne:
			if !extended {
				continue
			}
			fc, _ := schema.ForeignCollection(f)
			related, err := c.Datasource().GetCollection(fc)
			if err != nil {
				continue
			}
			rs := related.Schema()
			for _, sub := range rs.FieldNames() {
				if col, ok := rs.Fields[sub].(schema.Column); ok {
					out = append(out, searchField{name + ":" + sub, col})
				}
			}
		}
	}
	return out
}

// Condition returns the leaf matching search on one column, or nil when the
// column cannot match it.
func Condition(field string, col schema.Column, search string) condtree.Tree {
	ops := col.FilterOperators
	switch col.ColumnType {
	case schema.TypeNumber:
		if n, err := strconv.ParseInt(search, 10, 64); err == nil && isDigits(search) && ops.Has(schema.OpEqual) {
			return condtree.NewLeaf(field, schema.OpEqual, n)
		}
	case schema.TypeEnum:
		if v, ok := lenientFind(col.EnumValues, search); ok && ops.Has(schema.OpEqual) {
			return condtree.NewLeaf(field, schema.OpEqual, v)
		}
	case schema.TypeString:
		switch {
		case ops.Has(schema.OpContains):
			return condtree.NewLeaf(field, schema.OpContains, search)
		case ops.Has(schema.OpEqual):
			return condtree.NewLeaf(field, schema.OpEqual, search)
		}
	case schema.TypeUUID:
		if _, err := uuid.Parse(search); err == nil && ops.Has(schema.OpEqual) {
			return condtree.NewLeaf(field, schema.OpEqual, search)
		}
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func lenientFind(haystack []string, needle string) (string, bool) {
	fold := cases.Fold()
	needle = strings.TrimSpace(needle)
	folded := fold.String(needle)
	for _, item := range haystack {
		if item == needle || fold.String(item) == folded {
			return item, true
		}
	}
	return "", false
}
