// Package stack assembles the capability decorators in their fixed order on
// top of a base datasource and routes customizations to the right layer.
package stack

import (
	"time"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/decorators/action"
	"github.com/roach88/dstoolkit/internal/decorators/binary"
	"github.com/roach88/dstoolkit/internal/decorators/chart"
	"github.com/roach88/dstoolkit/internal/decorators/computed"
	"github.com/roach88/dstoolkit/internal/decorators/empty"
	"github.com/roach88/dstoolkit/internal/decorators/hook"
	"github.com/roach88/dstoolkit/internal/decorators/opemulate"
	"github.com/roach88/dstoolkit/internal/decorators/opequivalence"
	"github.com/roach88/dstoolkit/internal/decorators/override"
	"github.com/roach88/dstoolkit/internal/decorators/publication"
	"github.com/roach88/dstoolkit/internal/decorators/relation"
	"github.com/roach88/dstoolkit/internal/decorators/renamefield"
	"github.com/roach88/dstoolkit/internal/decorators/schemaoverride"
	"github.com/roach88/dstoolkit/internal/decorators/search"
	"github.com/roach88/dstoolkit/internal/decorators/segment"
	"github.com/roach88/dstoolkit/internal/decorators/sortemulate"
	"github.com/roach88/dstoolkit/internal/decorators/validation"
	"github.com/roach88/dstoolkit/internal/decorators/write"
)

// Option configures the stack.
type Option func(*options)

type options struct {
	maxRows int
	now     func() time.Time
}

// WithMaxRows bounds in-memory filtering in both operator emulation layers.
// Zero removes the ceiling.
func WithMaxRows(n int) Option {
	return func(o *options) { o.maxRows = n }
}

// WithClock anchors date-relative operators.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Stack holds every layer, innermost first. Each layer is its own instance,
// so the early and late computed, emulation and equivalence layers only see
// what was registered on them.
type Stack struct {
	Base collection.Datasource

	Empty              *decorators.Datasource[*empty.Collection]
	Override           *decorators.Datasource[*override.Collection]
	EarlyComputed      *decorators.Datasource[*computed.Collection]
	EarlyOpEmulate     *decorators.Datasource[*opemulate.Collection]
	EarlyOpEquivalence *decorators.Datasource[*opequivalence.Collection]
	Relation           *decorators.Datasource[*relation.Collection]
	LateComputed       *decorators.Datasource[*computed.Collection]
	LateOpEmulate      *decorators.Datasource[*opemulate.Collection]
	LateOpEquivalence  *decorators.Datasource[*opequivalence.Collection]
	Search             *decorators.Datasource[*search.Collection]
	Segment            *decorators.Datasource[*segment.Collection]
	SortEmulate        *decorators.Datasource[*sortemulate.Collection]
	Chart              *chart.Datasource
	Action             *decorators.Datasource[*action.Collection]
	Schema             *decorators.Datasource[*schemaoverride.Collection]
	Write              *decorators.Datasource[*write.Collection]
	Hook               *decorators.Datasource[*hook.Collection]
	Validation         *decorators.Datasource[*validation.Collection]
	Binary             *decorators.Datasource[*binary.Collection]
	Publication        *publication.Datasource
	RenameField        *renamefield.Datasource
}

// New decorates base.
func New(base collection.Datasource, opts ...Option) *Stack {
	o := options{maxRows: opemulate.DefaultMaxRows, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	emulate := []opemulate.Option{opemulate.WithMaxRows(o.maxRows)}
	equivalence := []opequivalence.Option{opequivalence.WithClock(o.now)}

	s := &Stack{Base: base}
	s.Empty = empty.NewDatasource(base)
	s.Override = override.NewDatasource(s.Empty)

	s.EarlyComputed = computed.NewDatasource(s.Override)
	s.EarlyOpEmulate = opemulate.NewDatasource(s.EarlyComputed, emulate...)
	s.EarlyOpEquivalence = opequivalence.NewDatasource(s.EarlyOpEmulate, equivalence...)

	s.Relation = relation.NewDatasource(s.EarlyOpEquivalence)

	s.LateComputed = computed.NewDatasource(s.Relation)
	s.LateOpEmulate = opemulate.NewDatasource(s.LateComputed, emulate...)
	s.LateOpEquivalence = opequivalence.NewDatasource(s.LateOpEmulate, equivalence...)

	s.Search = search.NewDatasource(s.LateOpEquivalence)
	s.Segment = segment.NewDatasource(s.Search)
	s.SortEmulate = sortemulate.NewDatasource(s.Segment)

	s.Chart = chart.NewDatasource(s.SortEmulate)
	s.Action = action.NewDatasource(s.Chart)
	s.Schema = schemaoverride.NewDatasource(s.Action)
	s.Write = write.NewDatasource(s.Schema)
	s.Hook = hook.NewDatasource(s.Write)
	s.Validation = validation.NewDatasource(s.Hook)
	s.Binary = binary.NewDatasource(s.Validation)
	s.Publication = publication.NewDatasource(s.Binary)
	s.RenameField = renamefield.NewDatasource(s.Publication)
	return s
}

// Datasource returns the outermost layer.
func (s *Stack) Datasource() collection.Datasource { return s.RenameField }
