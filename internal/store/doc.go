// Package store is a SQLite-backed datasource.
//
// Each collection is one table. Condition trees, sorts, pages and
// aggregations without date groups are compiled to SQL by the querysql
// package; relation projections are resolved with follow-up queries on the
// sibling collections.
//
// # Stored representation
//
//   - Date values are RFC 3339 UTC text, so text comparison orders them
//   - Boolean values are 0 or 1
//   - Json and Point values are JSON text
//   - Binary values are BLOBs
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - case_sensitive_like=ON: LIKE matches case, ILike lowers both sides
//
// Every read orders by the requested sort followed by the primary keys
// (COLLATE BINARY for text keys), so results are deterministic.
package store
