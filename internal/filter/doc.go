// Package filter holds the request-scoped query values handed to collections:
// Filter (condition tree, search, segment, timezone), PaginatedFilter which
// adds Sort and Page, and helpers deriving one filter from another.
//
// Every value here is immutable by convention. Methods return modified copies.
package filter
