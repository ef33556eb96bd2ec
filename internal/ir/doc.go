// Package ir holds the value-level primitives every other package relies on:
// loose comparison of record values, canonical JSON, and hash keys.
//
// This package imports nothing internal. It is the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Records are plain map[string]any; values may come from JSON, SQL drivers
//     or customer code, so numbers are compared by value, not by Go type
//   - Canonical JSON is the only input to hashing (group keys, dedup keys)
package ir
