// Package memory is a reference datasource keeping rows in process memory.
//
// It evaluates condition trees, sorts, pages and aggregates natively but
// advertises only the operators its columns declare, so it doubles as the
// capability-limited base that decorator stacks are tested against.
// Many-to-one and one-to-one relations are joined on read.
package memory
