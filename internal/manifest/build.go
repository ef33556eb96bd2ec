package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/decorators/binary"
	"github.com/roach88/dstoolkit/internal/decorators/computed"
	"github.com/roach88/dstoolkit/internal/decorators/segment"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/memory"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/stack"
	"github.com/roach88/dstoolkit/internal/store"
)

// Backend selects the base datasource.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Options configures Build.
type Options struct {
	Backend Backend
	// Path is the SQLite database file. Empty means an in-memory database.
	Path  string
	Stack []stack.Option
}

// Built is a decorated datasource built from a manifest.
type Built struct {
	Customizer *stack.Customizer

	close func() error
}

// Datasource returns the published datasource.
func (b *Built) Datasource() collection.Datasource { return b.Customizer.Datasource() }

// Close releases the base datasource.
func (b *Built) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Build creates the base datasource, seeds it and applies every
// customization. Relations of all collections are declared before any other
// customization so imports and computed fields can follow them.
func (m *Manifest) Build(ctx context.Context, opts Options) (*Built, error) {
	schemas, err := m.Schemas()
	if err != nil {
		return nil, err
	}
	base, closeFn, err := m.base(ctx, opts, schemas)
	if err != nil {
		return nil, err
	}
	built := &Built{Customizer: stack.NewCustomizer(base, opts.Stack...), close: closeFn}

	if err := m.customize(built.Customizer); err != nil {
		built.Close()
		return nil, err
	}
	return built, nil
}

func (m *Manifest) base(ctx context.Context, opts Options, schemas map[string]schema.CollectionSchema) (collection.Datasource, func() error, error) {
	switch opts.Backend {
	case BackendMemory, "":
		ds, err := memory.FromSchemas(schemas)
		if err != nil {
			return nil, nil, err
		}
		for _, name := range m.CollectionNames() {
			c, err := ds.Collection(name)
			if err != nil {
				return nil, nil, err
			}
			c.Seed(m.Collections[name].Rows...)
		}
		return ds, nil, nil

	case BackendSQLite:
		path := opts.Path
		if path == "" {
			path = ":memory:"
		}
		s, err := store.Open(path, schemas)
		if err != nil {
			return nil, nil, err
		}
		if err := m.seedStore(ctx, s); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, errs.Configurationf("unknown backend %q", opts.Backend)
}

// seedStore inserts the manifest rows into empty tables only, so reopening a
// database file keeps its content.
func (m *Manifest) seedStore(ctx context.Context, s *store.Store) error {
	for _, name := range m.CollectionNames() {
		rows := m.Collections[name].Rows
		if len(rows) == 0 {
			continue
		}
		c, err := s.Collection(name)
		if err != nil {
			return err
		}
		count, err := c.Aggregate(ctx, nil, filter.Filter{}, aggregation.Aggregation{Operation: aggregation.Count}, 0)
		if err != nil {
			return err
		}
		if len(count) > 0 && count[0].Value != 0 {
			slog.Debug("skip seeding non-empty table", "collection", name)
			continue
		}
		if _, err := c.Create(ctx, nil, rows); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

func (m *Manifest) customize(cz *stack.Customizer) error {
	names := m.CollectionNames()
	for _, name := range names {
		cust := m.Collections[name].Customize
		if cust == nil {
			continue
		}
		cc, err := cz.Collection(name)
		if err != nil {
			return err
		}
		for _, rel := range slices.Sorted(maps.Keys(cust.Relations)) {
			f, err := cust.Relations[rel].Field()
			if err != nil {
				return errs.Configurationf("%s.%s: %v", name, rel, err)
			}
			if err := cc.AddRelation(rel, f); err != nil {
				return err
			}
		}
	}

	for _, name := range names {
		cust := m.Collections[name].Customize
		if cust == nil {
			continue
		}
		cc, err := cz.Collection(name)
		if err != nil {
			return err
		}
		if err := apply(cc, cust); err != nil {
			return fmt.Errorf("customize %s: %w", name, err)
		}
	}

	renames := map[string]string{}
	for _, name := range names {
		if cust := m.Collections[name].Customize; cust != nil && cust.Rename != "" {
			renames[name] = cust.Rename
		}
	}
	if err := cz.RenameCollections(renames); err != nil {
		return err
	}
	return cz.RemoveCollection(m.RemoveCollections...)
}

func apply(cc *stack.CollectionCustomizer, cust *Customization) error {
	for _, name := range slices.Sorted(maps.Keys(cust.Imports)) {
		imp := cust.Imports[name]
		if err := cc.ImportField(name, stack.ImportOptions{Path: imp.Path, ReadOnly: imp.ReadOnly}); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cust.Computed)) {
		if err := cc.AddField(name, Template(cust.Computed[name])); err != nil {
			return err
		}
	}
	for _, name := range cust.EmulateFiltering {
		if err := cc.EmulateFieldFiltering(name); err != nil {
			return err
		}
	}
	for _, name := range cust.EmulateSorting {
		if err := cc.EmulateFieldSorting(name); err != nil {
			return err
		}
	}
	for _, name := range cust.DisableSorting {
		if err := cc.DisableFieldSorting(name); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cust.Segments)) {
		tree, err := condtree.FromPlain(cust.Segments[name])
		if err != nil {
			return err
		}
		if err := cc.AddSegment(name, segment.Static(tree)); err != nil {
			return err
		}
	}
	for _, field := range slices.Sorted(maps.Keys(cust.Validations)) {
		for _, v := range cust.Validations[field] {
			if err := cc.AddFieldValidation(field, schema.Operator(v.Operator), v.Value); err != nil {
				return err
			}
		}
	}
	for _, field := range slices.Sorted(maps.Keys(cust.BinaryModes)) {
		if err := cc.ReplaceFieldBinaryMode(field, binary.Mode(cust.BinaryModes[field])); err != nil {
			return err
		}
	}
	if cust.DisableSearch {
		if err := cc.DisableSearch(); err != nil {
			return err
		}
	}
	if cust.DisableCount {
		if err := cc.DisableCount(); err != nil {
			return err
		}
	}
	if err := cc.RemoveField(cust.RemoveFields...); err != nil {
		return err
	}
	return cc.RenameFields(cust.RenameFields)
}

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Template returns a computed String field rendering spec.Template for each
// record. Null dependencies render as empty strings.
func Template(spec ComputedSpec) computed.Definition {
	return computed.Definition{
		ColumnType:   schema.TypeString,
		Dependencies: spec.Dependencies,
		Values: func(_ context.Context, records []collection.Record, _ *decorators.CustomizationContext) ([]any, error) {
			out := make([]any, len(records))
			for i, r := range records {
				out[i] = placeholder.ReplaceAllStringFunc(spec.Template, func(m string) string {
					v := ir.FieldValue(r, m[1:len(m)-1])
					if v == nil {
						return ""
					}
					return fmt.Sprint(v)
				})
			}
			return out, nil
		},
	}
}
