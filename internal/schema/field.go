package schema

import (
	"encoding/json"
	"fmt"
)

// Field is a sealed sum type: Column or one of the relation kinds.
// Implemented by value types only; copying a field never aliases mutable state
// except operator sets, which are never mutated in place.
type Field interface {
	FieldType() FieldType
	isField()
}

// Validation is a single validation rule on a column.
type Validation struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Column is a scalar field.
type Column struct {
	ColumnType      PrimitiveType `json:"column_type"`
	FilterOperators OperatorSet   `json:"filter_operators"`
	DefaultValue    any           `json:"default_value,omitempty"`
	EnumValues      []string      `json:"enum_values,omitempty"`
	IsPrimaryKey    bool          `json:"is_primary_key"`
	IsReadOnly      bool          `json:"is_read_only"`
	IsSortable      bool          `json:"is_sortable"`
	Validations     []Validation  `json:"validations"`
}

// ManyToOne points from a foreign key column to a record in another collection.
type ManyToOne struct {
	ForeignCollection string `json:"foreign_collection"`
	ForeignKey        string `json:"foreign_key"`
	ForeignKeyTarget  string `json:"foreign_key_target"`
}

// OneToOne is the inverse of a ManyToOne with a unique origin key.
type OneToOne struct {
	ForeignCollection string `json:"foreign_collection"`
	OriginKey         string `json:"origin_key"`
	OriginKeyTarget   string `json:"origin_key_target"`
}

// OneToMany is the inverse of a ManyToOne.
type OneToMany struct {
	ForeignCollection string `json:"foreign_collection"`
	OriginKey         string `json:"origin_key"`
	OriginKeyTarget   string `json:"origin_key_target"`
}

// ManyToMany goes through a join collection.
type ManyToMany struct {
	ForeignCollection string `json:"foreign_collection"`
	ThroughCollection string `json:"through_collection"`
	ForeignKey        string `json:"foreign_key"`
	ForeignKeyTarget  string `json:"foreign_key_target"`
	OriginKey         string `json:"origin_key"`
	OriginKeyTarget   string `json:"origin_key_target"`
	ForeignRelation   string `json:"foreign_relation,omitempty"`
}

// PolymorphicManyToOne points to a record in one of several collections.
type PolymorphicManyToOne struct {
	ForeignCollections  []string          `json:"foreign_collections"`
	ForeignKey          string            `json:"foreign_key"`
	ForeignKeyTypeField string            `json:"foreign_key_type_field"`
	ForeignKeyTargets   map[string]string `json:"foreign_key_targets"`
}

// PolymorphicOneToOne is the inverse of a PolymorphicManyToOne.
type PolymorphicOneToOne struct {
	ForeignCollection string `json:"foreign_collection"`
	OriginKey         string `json:"origin_key"`
	OriginKeyTarget   string `json:"origin_key_target"`
	OriginTypeField   string `json:"origin_type_field"`
	OriginTypeValue   string `json:"origin_type_value"`
}

// PolymorphicOneToMany is the many side of a PolymorphicOneToOne.
type PolymorphicOneToMany struct {
	ForeignCollection string `json:"foreign_collection"`
	OriginKey         string `json:"origin_key"`
	OriginKeyTarget   string `json:"origin_key_target"`
	OriginTypeField   string `json:"origin_type_field"`
	OriginTypeValue   string `json:"origin_type_value"`
}

func (Column) FieldType() FieldType               { return FieldColumn }
func (ManyToOne) FieldType() FieldType            { return FieldManyToOne }
func (OneToOne) FieldType() FieldType             { return FieldOneToOne }
func (OneToMany) FieldType() FieldType            { return FieldOneToMany }
func (ManyToMany) FieldType() FieldType           { return FieldManyToMany }
func (PolymorphicManyToOne) FieldType() FieldType { return FieldPolymorphicManyToOne }
func (PolymorphicOneToOne) FieldType() FieldType  { return FieldPolymorphicOneToOne }
func (PolymorphicOneToMany) FieldType() FieldType { return FieldPolymorphicOneToMany }

func (Column) isField()               {}
func (ManyToOne) isField()            {}
func (OneToOne) isField()             {}
func (OneToMany) isField()            {}
func (ManyToMany) isField()           {}
func (PolymorphicManyToOne) isField() {}
func (PolymorphicOneToOne) isField()  {}
func (PolymorphicOneToMany) isField() {}

// Compile-time interface satisfaction checks.
var (
	_ Field = Column{}
	_ Field = ManyToOne{}
	_ Field = OneToOne{}
	_ Field = OneToMany{}
	_ Field = ManyToMany{}
	_ Field = PolymorphicManyToOne{}
	_ Field = PolymorphicOneToOne{}
	_ Field = PolymorphicOneToMany{}
)

// IsColumn reports whether f is a Column.
func IsColumn(f Field) bool {
	_, ok := f.(Column)
	return ok
}

// IsManyToOneLike reports whether f resolves to at most one record and can be
// traversed in a projection path (ManyToOne or OneToOne).
func IsManyToOneLike(f Field) bool {
	switch f.(type) {
	case ManyToOne, OneToOne, PolymorphicOneToOne:
		return true
	}
	return false
}

// ForeignCollection returns the target collection of a single-target relation.
func ForeignCollection(f Field) (string, bool) {
	switch r := f.(type) {
	case ManyToOne:
		return r.ForeignCollection, true
	case OneToOne:
		return r.ForeignCollection, true
	case OneToMany:
		return r.ForeignCollection, true
	case ManyToMany:
		return r.ForeignCollection, true
	case PolymorphicOneToOne:
		return r.ForeignCollection, true
	case PolymorphicOneToMany:
		return r.ForeignCollection, true
	}
	return "", false
}

type fieldEnvelope struct {
	Type FieldType `json:"type"`
}

// MarshalField writes f with a "type" discriminator.
func MarshalField(f Field) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["type"], _ = json.Marshal(f.FieldType())
	return json.Marshal(m)
}

// UnmarshalField reads a field written by MarshalField.
func UnmarshalField(data []byte) (Field, error) {
	var env fieldEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case FieldColumn:
		return decodeField[Column](data)
	case FieldManyToOne:
		return decodeField[ManyToOne](data)
	case FieldOneToOne:
		return decodeField[OneToOne](data)
	case FieldOneToMany:
		return decodeField[OneToMany](data)
	case FieldManyToMany:
		return decodeField[ManyToMany](data)
	case FieldPolymorphicManyToOne:
		return decodeField[PolymorphicManyToOne](data)
	case FieldPolymorphicOneToOne:
		return decodeField[PolymorphicOneToOne](data)
	case FieldPolymorphicOneToMany:
		return decodeField[PolymorphicOneToMany](data)
	default:
		return nil, fmt.Errorf("unknown field type %q", env.Type)
	}
}

func decodeField[T Field](data []byte) (Field, error) {
	var f T
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}
