package stack

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/decorators/action"
	"github.com/roach88/dstoolkit/internal/decorators/binary"
	"github.com/roach88/dstoolkit/internal/decorators/chart"
	"github.com/roach88/dstoolkit/internal/decorators/computed"
	"github.com/roach88/dstoolkit/internal/decorators/hook"
	"github.com/roach88/dstoolkit/internal/decorators/opemulate"
	"github.com/roach88/dstoolkit/internal/decorators/override"
	"github.com/roach88/dstoolkit/internal/decorators/schemaoverride"
	"github.com/roach88/dstoolkit/internal/decorators/search"
	"github.com/roach88/dstoolkit/internal/decorators/segment"
	"github.com/roach88/dstoolkit/internal/decorators/write"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Customizer is the entry point for customizing a datasource. Calls apply
// immediately and report configuration errors to the caller.
type Customizer struct {
	stack *Stack
}

// Plugin bundles customizations.
type Plugin func(cz *Customizer) error

// NewCustomizer decorates base with a fresh stack.
func NewCustomizer(base collection.Datasource, opts ...Option) *Customizer {
	return &Customizer{stack: New(base, opts...)}
}

// Stack exposes the layers.
func (cz *Customizer) Stack() *Stack { return cz.stack }

// Datasource returns the customized datasource.
func (cz *Customizer) Datasource() collection.Datasource { return cz.stack.Datasource() }

// Use applies a plugin.
func (cz *Customizer) Use(p Plugin) error { return p(cz) }

// Collection returns the customizer of a collection by its published name.
func (cz *Customizer) Collection(name string) (*CollectionCustomizer, error) {
	published, err := cz.stack.RenameField.Decorated(name)
	if err != nil {
		return nil, err
	}
	return &CollectionCustomizer{stack: cz.stack, name: published.Child().Name(), published: name}, nil
}

// CollectionNames lists the published collections in datasource order.
func (cz *Customizer) CollectionNames() []string {
	var out []string
	for _, c := range cz.Datasource().Collections() {
		out = append(out, c.Name())
	}
	return out
}

// AddChart registers a datasource-level chart.
func (cz *Customizer) AddChart(name string, def chart.DatasourceDefinition) error {
	return cz.stack.Chart.AddChart(name, def)
}

func (cz *Customizer) RenameCollection(current, next string) error {
	return cz.stack.RenameField.RenameCollection(current, next)
}

func (cz *Customizer) RenameCollections(renames map[string]string) error {
	return cz.stack.RenameField.RenameCollections(renames)
}

// RemoveCollection unpublishes collections by published name.
func (cz *Customizer) RemoveCollection(names ...string) error {
	for _, name := range names {
		c, err := cz.Collection(name)
		if err != nil {
			return err
		}
		if err := cz.stack.Publication.RemoveCollection(c.name); err != nil {
			return err
		}
	}
	return nil
}

// KeepCollectionsMatching keeps the included collections and drops the
// excluded ones. Names are published names.
func (cz *Customizer) KeepCollectionsMatching(include, exclude []string) error {
	toBase := func(names []string) ([]string, error) {
		out := make([]string, 0, len(names))
		for _, name := range names {
			c, err := cz.Collection(name)
			if err != nil {
				return nil, err
			}
			out = append(out, c.name)
		}
		return out, nil
	}
	in, err := toBase(include)
	if err != nil {
		return err
	}
	ex, err := toBase(exclude)
	if err != nil {
		return err
	}
	return cz.stack.Publication.KeepCollectionsMatching(in, ex)
}

// CollectionCustomizer routes customizations of one collection to the layer
// that implements them.
type CollectionCustomizer struct {
	stack     *Stack
	name      string
	published string
}

// Name is the published collection name.
func (cc *CollectionCustomizer) Name() string { return cc.published }

// Schema is the schema as published by the outermost layer.
func (cc *CollectionCustomizer) Schema() (schema.CollectionSchema, error) {
	c, err := cc.stack.RenameField.Decorated(cc.published)
	if err != nil {
		return schema.CollectionSchema{}, err
	}
	return c.Schema(), nil
}

// AddField registers a computed field. Fields whose dependencies all exist
// below the relation layer are computed there; the others are computed above
// it so they can depend on emulated relations.
func (cc *CollectionCustomizer) AddField(name string, def computed.Definition) error {
	early, err := cc.stack.EarlyComputed.Decorated(cc.name)
	if err != nil {
		return err
	}
	target := early
	for _, dep := range def.Dependencies {
		if _, err := schema.FieldAt(collection.Source(early), dep); err != nil {
			if target, err = cc.stack.LateComputed.Decorated(cc.name); err != nil {
				return err
			}
			break
		}
	}
	slog.Debug("register computed field", "collection", cc.name, "field", name, "early", target == early)
	return target.RegisterComputed(name, def)
}

// ImportOptions configures ImportField.
type ImportOptions struct {
	// Path is the column to import, like "author:name".
	Path string
	// ReadOnly prevents writing through the imported field.
	ReadOnly bool
}

// ImportField publishes a column reachable through relations as a column of
// this collection. It can be filtered and sorted like the original and,
// unless ReadOnly, written through its relation.
func (cc *CollectionCustomizer) ImportField(name string, opts ImportOptions) error {
	late, err := cc.stack.LateComputed.Decorated(cc.name)
	if err != nil {
		return err
	}
	col, err := schema.ColumnAt(collection.Source(late), opts.Path)
	if err != nil {
		return err
	}
	if !opts.ReadOnly && col.IsReadOnly {
		return errs.Configurationf("readonly option should not be false because the field %q is not writable", opts.Path)
	}
	path := opts.Path
	err = cc.AddField(name, computed.Definition{
		ColumnType:   col.ColumnType,
		Dependencies: []string{path},
		DefaultValue: col.DefaultValue,
		EnumValues:   col.EnumValues,
		Values: func(_ context.Context, records []collection.Record, _ *decorators.CustomizationContext) ([]any, error) {
			out := make([]any, len(records))
			for i, r := range records {
				out[i] = ir.FieldValue(r, path)
			}
			return out, nil
		},
	})
	if err != nil {
		return err
	}
	if !opts.ReadOnly {
		err := cc.ReplaceFieldWriting(name, func(_ context.Context, value any, _ *write.Context) (collection.Record, error) {
			patch := collection.Record{}
			ir.SetFieldValue(patch, path, value)
			return patch, nil
		})
		if err != nil {
			return err
		}
	}
	for _, op := range col.FilterOperators.Sorted() {
		err := cc.ReplaceFieldOperator(name, op, func(_ context.Context, value any, _ *decorators.CustomizationContext) (condtree.Tree, error) {
			return condtree.NewLeaf(path, op, value), nil
		})
		if err != nil {
			return err
		}
	}
	if col.IsSortable {
		return cc.ReplaceFieldSorting(name, filter.NewSort(filter.Clause{Field: path, Ascending: true}))
	}
	return nil
}

// AddRelation declares a relation the base datasource does not know about.
func (cc *CollectionCustomizer) AddRelation(name string, rel schema.Field) error {
	c, err := cc.stack.Relation.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.AddRelation(name, rel)
}

func (cc *CollectionCustomizer) AddManyToOneRelation(name, foreignCollection, foreignKey string) error {
	return cc.AddRelation(name, schema.ManyToOne{ForeignCollection: foreignCollection, ForeignKey: foreignKey})
}

func (cc *CollectionCustomizer) AddOneToOneRelation(name, foreignCollection, originKey string) error {
	return cc.AddRelation(name, schema.OneToOne{ForeignCollection: foreignCollection, OriginKey: originKey})
}

func (cc *CollectionCustomizer) AddOneToManyRelation(name, foreignCollection, originKey string) error {
	return cc.AddRelation(name, schema.OneToMany{ForeignCollection: foreignCollection, OriginKey: originKey})
}

func (cc *CollectionCustomizer) AddManyToManyRelation(name, foreignCollection, throughCollection, originKey, foreignKey string) error {
	return cc.AddRelation(name, schema.ManyToMany{
		ForeignCollection: foreignCollection,
		ThroughCollection: throughCollection,
		OriginKey:         originKey,
		ForeignKey:        foreignKey,
	})
}

// opEmulate picks the early layer when the field exists below relations.
func (cc *CollectionCustomizer) opEmulate(field string) (*opemulate.Collection, error) {
	early, err := cc.stack.EarlyOpEmulate.Decorated(cc.name)
	if err != nil {
		return nil, err
	}
	if _, ok := early.Schema().Fields[field]; ok {
		return early, nil
	}
	return cc.stack.LateOpEmulate.Decorated(cc.name)
}

func (cc *CollectionCustomizer) EmulateFieldFiltering(name string) error {
	c, err := cc.opEmulate(name)
	if err != nil {
		return err
	}
	return c.EmulateFieldFiltering(name)
}

func (cc *CollectionCustomizer) EmulateFieldOperator(name string, op schema.Operator) error {
	c, err := cc.opEmulate(name)
	if err != nil {
		return err
	}
	return c.EmulateFieldOperator(name, op)
}

func (cc *CollectionCustomizer) ReplaceFieldOperator(name string, op schema.Operator, def opemulate.Definition) error {
	c, err := cc.opEmulate(name)
	if err != nil {
		return err
	}
	return c.ReplaceFieldOperator(name, op, def)
}

func (cc *CollectionCustomizer) ReplaceSearch(def search.Definition) error {
	c, err := cc.stack.Search.Decorated(cc.name)
	if err != nil {
		return err
	}
	c.ReplaceSearch(def)
	return nil
}

func (cc *CollectionCustomizer) DisableSearch() error {
	c, err := cc.stack.Search.Decorated(cc.name)
	if err != nil {
		return err
	}
	c.DisableSearch()
	return nil
}

func (cc *CollectionCustomizer) AddSegment(name string, def segment.Definition) error {
	c, err := cc.stack.Segment.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.AddSegment(name, def)
}

func (cc *CollectionCustomizer) EmulateFieldSorting(name string) error {
	c, err := cc.stack.SortEmulate.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.EmulateFieldSorting(name)
}

func (cc *CollectionCustomizer) ReplaceFieldSorting(name string, equivalent filter.Sort) error {
	c, err := cc.stack.SortEmulate.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.ReplaceFieldSorting(name, equivalent)
}

func (cc *CollectionCustomizer) DisableFieldSorting(name string) error {
	c, err := cc.stack.SortEmulate.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.DisableFieldSorting(name)
}

func (cc *CollectionCustomizer) AddChart(name string, def chart.Definition) error {
	c, err := cc.stack.Chart.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.AddChart(name, def)
}

func (cc *CollectionCustomizer) AddAction(name string, a action.Action) error {
	c, err := cc.stack.Action.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.AddAction(name, a)
}

func (cc *CollectionCustomizer) OverrideSchema(o schemaoverride.Override) error {
	c, err := cc.stack.Schema.Decorated(cc.name)
	if err != nil {
		return err
	}
	c.OverrideSchema(o)
	return nil
}

// DisableCount stops advertising the collection as countable.
func (cc *CollectionCustomizer) DisableCount() error {
	countable := false
	return cc.OverrideSchema(schemaoverride.Override{Countable: &countable})
}

func (cc *CollectionCustomizer) ReplaceFieldWriting(name string, h write.Handler) error {
	c, err := cc.stack.Write.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.ReplaceFieldWriting(name, h)
}

func (cc *CollectionCustomizer) hooks() (*hook.Collection, error) {
	return cc.stack.Hook.Decorated(cc.name)
}

func (cc *CollectionCustomizer) AddListHook(pos hook.Position, fn hook.Hook[*hook.ListContext]) error {
	c, err := cc.hooks()
	if err != nil {
		return err
	}
	return c.AddListHook(pos, fn)
}

func (cc *CollectionCustomizer) AddCreateHook(pos hook.Position, fn hook.Hook[*hook.CreateContext]) error {
	c, err := cc.hooks()
	if err != nil {
		return err
	}
	return c.AddCreateHook(pos, fn)
}

func (cc *CollectionCustomizer) AddUpdateHook(pos hook.Position, fn hook.Hook[*hook.UpdateContext]) error {
	c, err := cc.hooks()
	if err != nil {
		return err
	}
	return c.AddUpdateHook(pos, fn)
}

func (cc *CollectionCustomizer) AddDeleteHook(pos hook.Position, fn hook.Hook[*hook.DeleteContext]) error {
	c, err := cc.hooks()
	if err != nil {
		return err
	}
	return c.AddDeleteHook(pos, fn)
}

func (cc *CollectionCustomizer) AddAggregateHook(pos hook.Position, fn hook.Hook[*hook.AggregateContext]) error {
	c, err := cc.hooks()
	if err != nil {
		return err
	}
	return c.AddAggregateHook(pos, fn)
}

func (cc *CollectionCustomizer) AddFieldValidation(name string, op schema.Operator, value any) error {
	c, err := cc.stack.Validation.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.AddValidation(name, schema.Validation{Operator: op, Value: value})
}

func (cc *CollectionCustomizer) ReplaceFieldBinaryMode(name string, mode binary.Mode) error {
	c, err := cc.stack.Binary.Decorated(cc.name)
	if err != nil {
		return err
	}
	return c.SetBinaryMode(name, mode)
}

// RemoveField hides fields from the published schema.
func (cc *CollectionCustomizer) RemoveField(names ...string) error {
	c, err := cc.stack.Publication.Decorated(cc.name)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.ChangeFieldVisibility(name, false); err != nil {
			return err
		}
	}
	return nil
}

func (cc *CollectionCustomizer) RenameField(current, next string) error {
	c, err := cc.stack.RenameField.Decorated(cc.published)
	if err != nil {
		return err
	}
	return c.RenameField(current, next)
}

// RenameFields applies several field renames.
func (cc *CollectionCustomizer) RenameFields(renames map[string]string) error {
	for _, current := range slices.Sorted(maps.Keys(renames)) {
		if err := cc.RenameField(current, renames[current]); err != nil {
			return err
		}
	}
	return nil
}

func (cc *CollectionCustomizer) overrides() (*override.Collection, error) {
	return cc.stack.Override.Decorated(cc.name)
}

func (cc *CollectionCustomizer) OverrideCreate(h override.CreateHandler) error {
	c, err := cc.overrides()
	if err != nil {
		return err
	}
	c.AddCreateHandler(h)
	return nil
}

func (cc *CollectionCustomizer) OverrideUpdate(h override.UpdateHandler) error {
	c, err := cc.overrides()
	if err != nil {
		return err
	}
	c.AddUpdateHandler(h)
	return nil
}

func (cc *CollectionCustomizer) OverrideDelete(h override.DeleteHandler) error {
	c, err := cc.overrides()
	if err != nil {
		return err
	}
	c.AddDeleteHandler(h)
	return nil
}
