// Package schematest provides static schema sources for tests.
package schematest

import (
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Catalog is a set of named schemas that resolve each other as siblings.
type Catalog map[string]schema.CollectionSchema

// Source returns the source for the named collection. It panics on unknown
// names so fixtures fail loudly.
func (c Catalog) Source(name string) schema.Source {
	if _, ok := c[name]; !ok {
		panic("schematest: unknown collection " + name)
	}
	return &source{name: name, catalog: c}
}

type source struct {
	name    string
	catalog Catalog
}

func (s *source) Name() string                    { return s.name }
func (s *source) Schema() schema.CollectionSchema { return s.catalog[s.name] }

func (s *source) Sibling(name string) (schema.Source, error) {
	if _, ok := s.catalog[name]; !ok {
		return nil, errs.NotFoundf("collection %q not found", name)
	}
	return &source{name: name, catalog: s.catalog}, nil
}

// Column builds a column with the given type and native operators.
func Column(t schema.PrimitiveType, ops ...schema.Operator) schema.Column {
	return schema.Column{ColumnType: t, FilterOperators: schema.NewOperatorSet(ops...), IsSortable: true}
}

// PrimaryKey builds a sortable primary key supporting EQUAL and IN.
func PrimaryKey(t schema.PrimitiveType) schema.Column {
	c := Column(t, schema.OpEqual, schema.OpIn)
	c.IsPrimaryKey = true
	return c
}

// Library returns the Book/Person/Card catalog used across package tests.
//
//	Book:   id, title, published_at, author_id, author -> Person
//	Person: id, name, birth_date, books (one-to-many), card (one-to-one)
//	Card:   id, number, owner_id
func Library() Catalog {
	book := schema.NewCollectionSchema()
	book.Fields["id"] = PrimaryKey(schema.TypeNumber)
	book.Fields["title"] = Column(schema.TypeString, schema.OpEqual, schema.OpIn, schema.OpLike, schema.OpContains)
	book.Fields["published_at"] = Column(schema.TypeDate, schema.OpEqual, schema.OpLessThan, schema.OpGreaterThan)
	book.Fields["author_id"] = Column(schema.TypeNumber, schema.OpEqual, schema.OpIn)
	book.Fields["author"] = schema.ManyToOne{ForeignCollection: "Person", ForeignKey: "author_id", ForeignKeyTarget: "id"}

	person := schema.NewCollectionSchema()
	person.Fields["id"] = PrimaryKey(schema.TypeNumber)
	person.Fields["name"] = Column(schema.TypeString, schema.OpEqual, schema.OpIn)
	person.Fields["birth_date"] = Column(schema.TypeDateOnly, schema.OpEqual, schema.OpLessThan, schema.OpGreaterThan)
	person.Fields["books"] = schema.OneToMany{ForeignCollection: "Book", OriginKey: "author_id", OriginKeyTarget: "id"}
	person.Fields["card"] = schema.OneToOne{ForeignCollection: "Card", OriginKey: "owner_id", OriginKeyTarget: "id"}

	card := schema.NewCollectionSchema()
	card.Fields["id"] = PrimaryKey(schema.TypeNumber)
	card.Fields["number"] = Column(schema.TypeString, schema.OpEqual)
	card.Fields["owner_id"] = Column(schema.TypeNumber, schema.OpEqual, schema.OpIn)

	return Catalog{"Book": book, "Person": person, "Card": card}
}
