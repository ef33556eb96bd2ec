// Package schema defines collection schemas: column and relation fields,
// filter operators and the per-type operator tables.
//
// Schemas are values. A decorator that changes what a collection exposes
// clones the child's schema and edits the clone, never the child's value.
package schema
