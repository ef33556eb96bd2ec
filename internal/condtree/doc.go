// Package condtree implements condition trees: the boolean filter AST shared
// by every collection, its factory helpers, in-memory matching, and the
// operator equivalence engine.
//
// A tree is either a Leaf (field, operator, value) or a Branch (and/or over
// children). Trees are immutable values: every transform returns a new tree.
//
// Two sentinels matter everywhere:
//   - a nil Tree matches every record (MatchAll)
//   - an OR branch with no children matches nothing (MatchNone)
//
// The equivalence engine answers whether an operator can be rewritten using
// only a given operator set, and produces the rewritten tree. Alternatives
// are tried depth first in table order; the first fully resolvable one wins.
// Resolutions are memoized per (operator, column type, operator set).
package condtree
