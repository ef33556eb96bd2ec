// Package manifest describes a datasource declaratively: collections with
// their fields and seed rows, plus the customizations to stack on top of
// them.
//
// Manifests are written in CUE or YAML. Either form is converted to JSON and
// validated against an embedded JSON Schema before it is decoded, so shape
// errors report the offending path. Build turns a manifest into a base
// datasource (memory or SQLite) wrapped in the full decorator stack.
package manifest
