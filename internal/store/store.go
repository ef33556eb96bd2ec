package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/querysql"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Schema version tracking:
// 0 - no tables
// 1 - one table per collection
const currentSchemaVersion = 1

// Store is a datasource whose collections live in SQLite tables.
type Store struct {
	*collection.BaseDatasource

	db      *sql.DB
	catalog querysql.Catalog
}

// Collection is one table.
type Collection struct {
	collection.BaseCollection

	store *Store
}

// Open creates or opens a SQLite database at the given path, applies the
// required pragmas and creates one table per collection.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, schemas map[string]schema.CollectionSchema) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and case_sensitive_like is
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s, err := New(db, schemas)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// New wraps an open database. Tables are expected to exist already.
//
// Column operators are replaced by what the SQL compiler supports natively
// for the column type; Json, Point and Binary columns are not sortable.
func New(db *sql.DB, schemas map[string]schema.CollectionSchema) (*Store, error) {
	s := &Store{
		BaseDatasource: collection.NewBaseDatasource(),
		db:             db,
		catalog:        querysql.Catalog{},
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		stored := schemas[name].Clone()
		for field, f := range stored.Fields {
			col, ok := f.(schema.Column)
			if !ok {
				continue
			}
			col.FilterOperators = querysql.NativeOperators(col.ColumnType)
			col.IsSortable = sortable(col.ColumnType)
			stored.Fields[field] = col
		}
		if len(schema.PrimaryKeys(stored)) == 0 {
			return nil, errs.Configurationf("collection %q has no primary key", name)
		}

		c := &Collection{BaseCollection: collection.NewBaseCollection(name, s), store: s}
		if err := c.AddFields(stored.Fields); err != nil {
			return nil, err
		}
		c.SetCountable(true)
		if err := s.AddCollection(c); err != nil {
			return nil, err
		}
		s.catalog[name] = stored
	}
	return s, nil
}

func sortable(t schema.PrimitiveType) bool {
	switch t {
	case schema.TypeJSON, schema.TypePoint, schema.TypeBinary:
		return false
	}
	return true
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using collection methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Collection returns the named table.
func (s *Store) Collection(name string) (*Collection, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return nil, err
	}
	sc, ok := c.(*Collection)
	if !ok {
		return nil, errs.Configurationf("collection %q is not a store collection", name)
	}
	return sc, nil
}

func (s *Store) compiler() *querysql.SQLCompiler {
	return querysql.NewSQLCompiler(s.catalog)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA case_sensitive_like = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates missing tables and records the schema version.
func (s *Store) applySchema() error {
	ctx := context.Background()
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return errs.Configurationf("database schema version %d is newer than %d", version, currentSchemaVersion)
	}

	for _, c := range s.Collections() {
		if _, err := s.db.ExecContext(ctx, CreateTable(c.Name(), c.Schema())); err != nil {
			return fmt.Errorf("create table %q: %w", c.Name(), err)
		}
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// CreateTable returns the DDL of the table backing a collection. A single
// Number primary key becomes the rowid alias so SQLite generates it.
func CreateTable(name string, s schema.CollectionSchema) string {
	pks := schema.PrimaryKeys(s)
	rowid := len(pks) == 1 && s.Fields[pks[0]].(schema.Column).ColumnType == schema.TypeNumber

	var defs []string
	for _, field := range s.FieldNames() {
		col, ok := s.Fields[field].(schema.Column)
		if !ok {
			continue
		}
		if rowid && col.IsPrimaryKey {
			defs = append(defs, querysql.Quote(field)+" INTEGER PRIMARY KEY")
			continue
		}
		defs = append(defs, querysql.Quote(field)+" "+affinity(col.ColumnType))
	}
	if !rowid {
		quoted := make([]string, len(pks))
		for i, pk := range pks {
			quoted[i] = querysql.Quote(pk)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", querysql.Quote(name), strings.Join(defs, ", "))
}

func affinity(t schema.PrimitiveType) string {
	switch t {
	case schema.TypeNumber:
		return "NUMERIC"
	case schema.TypeBoolean:
		return "INTEGER"
	case schema.TypeBinary:
		return "BLOB"
	}
	return "TEXT"
}
