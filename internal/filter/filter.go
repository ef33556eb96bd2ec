package filter

import (
	"encoding/json"
	"time"

	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
)

// Filter restricts the records an operation touches.
type Filter struct {
	ConditionTree  condtree.Tree
	Search         string
	SearchExtended bool
	Segment        string
	Timezone       *time.Location
}

// Location returns the filter timezone, UTC when unset.
func (f Filter) Location() *time.Location {
	if f.Timezone == nil {
		return time.UTC
	}
	return f.Timezone
}

// WithConditionTree returns a copy using t.
func (f Filter) WithConditionTree(t condtree.Tree) Filter {
	f.ConditionTree = t
	return f
}

// WithSearch returns a copy with a new search string and extended flag.
func (f Filter) WithSearch(search string, extended bool) Filter {
	f.Search = search
	f.SearchExtended = extended
	return f
}

// WithSegment returns a copy selecting segment.
func (f Filter) WithSegment(segment string) Filter {
	f.Segment = segment
	return f
}

// IsNestable reports whether the filter can be moved under a relation.
// Search and segments are meaningful only on the collection they target.
func (f Filter) IsNestable() bool {
	return f.Search == "" && f.Segment == ""
}

// Nest moves the condition tree under relation prefix.
func (f Filter) Nest(prefix string) (Filter, error) {
	if !f.IsNestable() {
		return Filter{}, errs.Configurationf("filter can't be nested")
	}
	if f.ConditionTree != nil {
		f.ConditionTree = f.ConditionTree.Nest(prefix)
	}
	return f, nil
}

// Paginated wraps f without sort or page.
func (f Filter) Paginated() PaginatedFilter {
	return PaginatedFilter{Filter: f}
}

// Equal compares two filters. Trees compare structurally.
func (f Filter) Equal(o Filter) bool {
	return condtree.Equal(f.ConditionTree, o.ConditionTree) &&
		f.Search == o.Search &&
		f.SearchExtended == o.SearchExtended &&
		f.Segment == o.Segment &&
		f.Location().String() == o.Location().String()
}

// PaginatedFilter is a Filter with ordering and a page window.
type PaginatedFilter struct {
	Filter
	Sort Sort
	Page *Page
}

// Base drops sort and page.
func (p PaginatedFilter) Base() Filter { return p.Filter }

// WithConditionTree returns a copy using t.
func (p PaginatedFilter) WithConditionTree(t condtree.Tree) PaginatedFilter {
	p.Filter = p.Filter.WithConditionTree(t)
	return p
}

// WithSearch returns a copy with a new search string and extended flag.
func (p PaginatedFilter) WithSearch(search string, extended bool) PaginatedFilter {
	p.Filter = p.Filter.WithSearch(search, extended)
	return p
}

// WithSegment returns a copy selecting segment.
func (p PaginatedFilter) WithSegment(segment string) PaginatedFilter {
	p.Filter = p.Filter.WithSegment(segment)
	return p
}

// WithSort returns a copy ordered by s.
func (p PaginatedFilter) WithSort(s Sort) PaginatedFilter {
	p.Sort = s
	return p
}

// WithPage returns a copy with page window pg. Nil removes paging.
func (p PaginatedFilter) WithPage(pg *Page) PaginatedFilter {
	p.Page = pg
	return p
}

// Nest moves the condition tree and the sort under relation prefix.
func (p PaginatedFilter) Nest(prefix string) (PaginatedFilter, error) {
	base, err := p.Filter.Nest(prefix)
	if err != nil {
		return PaginatedFilter{}, err
	}
	p.Filter = base
	p.Sort = p.Sort.Nest(prefix)
	return p, nil
}

// Equal compares two paginated filters.
func (p PaginatedFilter) Equal(o PaginatedFilter) bool {
	if !p.Filter.Equal(o.Filter) || !p.Sort.Equal(o.Sort) {
		return false
	}
	if p.Page == nil || o.Page == nil {
		return p.Page == o.Page
	}
	return *p.Page == *o.Page
}

type plainFilter struct {
	ConditionTree  json.RawMessage `json:"condition_tree,omitempty"`
	Search         string          `json:"search,omitempty"`
	SearchExtended bool            `json:"search_extended"`
	Segment        string          `json:"segment,omitempty"`
	Timezone       string          `json:"timezone,omitempty"`
	Sort           Sort            `json:"sort,omitempty"`
	Page           *Page           `json:"page,omitempty"`
}

func (f Filter) plain() (plainFilter, error) {
	out := plainFilter{Search: f.Search, SearchExtended: f.SearchExtended, Segment: f.Segment}
	if f.Timezone != nil {
		out.Timezone = f.Timezone.String()
	}
	if f.ConditionTree != nil {
		raw, err := json.Marshal(condtree.ToPlain(f.ConditionTree))
		if err != nil {
			return plainFilter{}, err
		}
		out.ConditionTree = raw
	}
	return out, nil
}

func (in plainFilter) filter() (Filter, error) {
	var f Filter
	if len(in.ConditionTree) > 0 && string(in.ConditionTree) != "null" {
		t, err := condtree.Unmarshal(in.ConditionTree)
		if err != nil {
			return Filter{}, err
		}
		f.ConditionTree = t
	}
	if in.Timezone != "" {
		loc, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return Filter{}, errs.Validationf("invalid timezone %q", in.Timezone)
		}
		f.Timezone = loc
	}
	f.Search = in.Search
	f.SearchExtended = in.SearchExtended
	f.Segment = in.Segment
	return f, nil
}

// MarshalJSON writes the plain form.
func (f Filter) MarshalJSON() ([]byte, error) {
	p, err := f.plain()
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// UnmarshalJSON reads the plain form.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var in plainFilter
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out, err := in.filter()
	if err != nil {
		return err
	}
	*f = out
	return nil
}

// MarshalJSON writes the plain form with sort and page.
func (p PaginatedFilter) MarshalJSON() ([]byte, error) {
	out, err := p.Filter.plain()
	if err != nil {
		return nil, err
	}
	out.Sort = p.Sort
	out.Page = p.Page
	return json.Marshal(out)
}

// UnmarshalJSON reads the plain form with sort and page.
func (p *PaginatedFilter) UnmarshalJSON(data []byte) error {
	var in plainFilter
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	base, err := in.filter()
	if err != nil {
		return err
	}
	*p = PaginatedFilter{Filter: base, Sort: in.Sort, Page: in.Page}
	return nil
}
