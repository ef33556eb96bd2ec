package manifest

import (
	"slices"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Manifest is the root document.
type Manifest struct {
	Collections       map[string]CollectionSpec `json:"collections"`
	RemoveCollections []string                  `json:"remove_collections,omitempty"`
}

// CollectionSpec declares one base collection.
type CollectionSpec struct {
	Fields     map[string]FieldSpec `json:"fields"`
	Searchable bool                 `json:"searchable,omitempty"`
	Rows       []map[string]any     `json:"rows,omitempty"`
	Customize  *Customization       `json:"customize,omitempty"`
}

// FieldSpec declares a column, or a relation when Type is a relation type.
type FieldSpec struct {
	Type        string           `json:"type"`
	PrimaryKey  bool             `json:"primary_key,omitempty"`
	ReadOnly    bool             `json:"read_only,omitempty"`
	Sortable    *bool            `json:"sortable,omitempty"`
	Operators   []string         `json:"operators,omitempty"`
	Enum        []string         `json:"enum,omitempty"`
	Default     any              `json:"default,omitempty"`
	Validations []ValidationSpec `json:"validations,omitempty"`

	ForeignCollection string `json:"foreign_collection,omitempty"`
	ThroughCollection string `json:"through_collection,omitempty"`
	ForeignKey        string `json:"foreign_key,omitempty"`
	ForeignKeyTarget  string `json:"foreign_key_target,omitempty"`
	OriginKey         string `json:"origin_key,omitempty"`
	OriginKeyTarget   string `json:"origin_key_target,omitempty"`
}

// ValidationSpec is one validation rule.
type ValidationSpec struct {
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// ComputedSpec is a computed String field rendered from a template where
// {path} placeholders are replaced by dependency values.
type ComputedSpec struct {
	Dependencies []string `json:"dependencies"`
	Template     string   `json:"template"`
}

// ImportSpec publishes a column reachable through relations.
type ImportSpec struct {
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// Customization lists the declarative customizations of a collection. They
// are applied in the order of the struct fields.
type Customization struct {
	Relations         map[string]FieldSpec        `json:"relations,omitempty"`
	Imports           map[string]ImportSpec       `json:"imports,omitempty"`
	Computed          map[string]ComputedSpec     `json:"computed,omitempty"`
	EmulateFiltering  []string                    `json:"emulate_filtering,omitempty"`
	EmulateSorting    []string                    `json:"emulate_sorting,omitempty"`
	DisableSorting    []string                    `json:"disable_sorting,omitempty"`
	Segments          map[string]any              `json:"segments,omitempty"`
	Validations       map[string][]ValidationSpec `json:"validations,omitempty"`
	BinaryModes       map[string]string           `json:"binary_modes,omitempty"`
	DisableSearch     bool                        `json:"disable_search,omitempty"`
	DisableCount      bool                        `json:"disable_count,omitempty"`
	RemoveFields      []string                    `json:"remove_fields,omitempty"`
	RenameFields      map[string]string           `json:"rename_fields,omitempty"`
	Rename            string                      `json:"rename,omitempty"`
}

// CollectionNames returns the declared collections in sorted order.
func (m *Manifest) CollectionNames() []string {
	names := make([]string, 0, len(m.Collections))
	for name := range m.Collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schemas returns the base schema of every collection.
func (m *Manifest) Schemas() (map[string]schema.CollectionSchema, error) {
	out := make(map[string]schema.CollectionSchema, len(m.Collections))
	for _, name := range m.CollectionNames() {
		spec := m.Collections[name]
		s := schema.NewCollectionSchema()
		s.Searchable = spec.Searchable
		s.Countable = true
		for fieldName, fs := range spec.Fields {
			f, err := fs.Field()
			if err != nil {
				return nil, errs.Configurationf("%s.%s: %v", name, fieldName, err)
			}
			s.Fields[fieldName] = f
		}
		out[name] = s
	}
	return out, nil
}

// Field converts the spec to a schema field.
func (fs FieldSpec) Field() (schema.Field, error) {
	switch schema.FieldType(fs.Type) {
	case schema.FieldManyToOne:
		return schema.ManyToOne{ForeignCollection: fs.ForeignCollection, ForeignKey: fs.ForeignKey, ForeignKeyTarget: fs.ForeignKeyTarget}, nil
	case schema.FieldOneToOne:
		return schema.OneToOne{ForeignCollection: fs.ForeignCollection, OriginKey: fs.OriginKey, OriginKeyTarget: fs.OriginKeyTarget}, nil
	case schema.FieldOneToMany:
		return schema.OneToMany{ForeignCollection: fs.ForeignCollection, OriginKey: fs.OriginKey, OriginKeyTarget: fs.OriginKeyTarget}, nil
	case schema.FieldManyToMany:
		return schema.ManyToMany{
			ForeignCollection: fs.ForeignCollection,
			ThroughCollection: fs.ThroughCollection,
			ForeignKey:        fs.ForeignKey,
			ForeignKeyTarget:  fs.ForeignKeyTarget,
			OriginKey:         fs.OriginKey,
			OriginKeyTarget:   fs.OriginKeyTarget,
		}, nil
	}

	t := schema.PrimitiveType(fs.Type)
	if !slices.Contains(primitiveTypes, t) {
		return nil, errs.Configurationf("unknown type %q", fs.Type)
	}
	ops := make([]schema.Operator, len(fs.Operators))
	for i, op := range fs.Operators {
		ops[i] = schema.Operator(op)
		if !ops[i].IsValid() {
			return nil, errs.Configurationf("unknown operator %q", op)
		}
	}
	col := schema.Column{
		ColumnType:      t,
		FilterOperators: schema.NewOperatorSet(ops...),
		DefaultValue:    fs.Default,
		EnumValues:      fs.Enum,
		IsPrimaryKey:    fs.PrimaryKey,
		IsReadOnly:      fs.ReadOnly,
		IsSortable:      fs.Sortable == nil || *fs.Sortable,
	}
	for _, v := range fs.Validations {
		col.Validations = append(col.Validations, schema.Validation{Operator: schema.Operator(v.Operator), Value: v.Value})
	}
	return col, nil
}

var primitiveTypes = []schema.PrimitiveType{
	schema.TypeBoolean, schema.TypeBinary, schema.TypeDate, schema.TypeDateOnly,
	schema.TypeEnum, schema.TypeJSON, schema.TypeNumber, schema.TypePoint,
	schema.TypeString, schema.TypeTimeOnly, schema.TypeUUID,
}
