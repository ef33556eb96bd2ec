package condtree

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Env is what a replacer may read besides the leaf.
type Env struct {
	Now        time.Time
	Location   *time.Location
	ColumnType schema.PrimitiveType
}

// replacer rewrites a leaf into an equivalent tree.
type replacer func(Leaf, Env) (Tree, error)

// alternative is one way to express an operator through others.
type alternative struct {
	dependsOn []schema.Operator
	forTypes  []schema.PrimitiveType
	replace   replacer
}

func (a *alternative) accepts(t schema.PrimitiveType) bool {
	return len(a.forTypes) == 0 || slices.Contains(a.forTypes, t)
}

var (
	alternativesOnce sync.Once
	alternatives     map[schema.Operator][]*alternative
)

func alternativesFor(op schema.Operator) []*alternative {
	alternativesOnce.Do(func() {
		alternatives = map[schema.Operator][]*alternative{}
		for _, family := range []map[schema.Operator][]*alternative{
			equalityTransforms(), patternTransforms(), timeTransforms(),
		} {
			for k, v := range family {
				alternatives[k] = v
			}
		}
	})
	return alternatives[op]
}

type resolutionKey struct {
	op         schema.Operator
	columnType schema.PrimitiveType
	allowed    string
}

// resolver memoizes top-level resolutions. Each entry is immutable once stored.
type resolver struct {
	mu    sync.Mutex
	cache map[resolutionKey]replacer
	known map[resolutionKey]bool
}

var defaultResolver = &resolver{
	cache: map[resolutionKey]replacer{},
	known: map[resolutionKey]bool{},
}

func (r *resolver) lookup(op schema.Operator, allowed schema.OperatorSet, t schema.PrimitiveType) (replacer, error) {
	if !op.IsValid() {
		return nil, errs.Filterf("unknown operator %q", op)
	}
	key := resolutionKey{op: op, columnType: t, allowed: allowed.Key()}
	r.mu.Lock()
	if r.known[key] {
		fn := r.cache[key]
		r.mu.Unlock()
		return fn, nil
	}
	r.mu.Unlock()

	fn := resolve(op, allowed, t, nil)

	r.mu.Lock()
	r.cache[key] = fn
	r.known[key] = true
	r.mu.Unlock()
	return fn, nil
}

func identity(l Leaf, _ Env) (Tree, error) { return l, nil }

// resolve searches alternatives depth first. visited holds the alternatives
// on the current path and breaks cycles such as EQUAL -> IN -> EQUAL.
func resolve(op schema.Operator, allowed schema.OperatorSet, t schema.PrimitiveType, visited []*alternative) replacer {
	if allowed.Has(op) {
		return identity
	}
	for _, alt := range alternativesFor(op) {
		if !alt.accepts(t) || slices.Contains(visited, alt) {
			continue
		}
		path := append(slices.Clone(visited), alt)
		deps := make([]replacer, 0, len(alt.dependsOn))
		for _, dep := range alt.dependsOn {
			fn := resolve(dep, allowed, t, path)
			if fn == nil {
				break
			}
			deps = append(deps, fn)
		}
		if len(alt.dependsOn) > 0 && len(deps) == len(alt.dependsOn) {
			return compose(alt, deps)
		}
	}
	return nil
}

// compose applies the alternative, then rewrites each produced leaf with the
// resolved replacer of its operator.
func compose(alt *alternative, deps []replacer) replacer {
	return func(l Leaf, env Env) (Tree, error) {
		tree, err := alt.replace(l, env)
		if err != nil || tree == nil {
			return tree, err
		}
		return tree.ReplaceErr(func(sub Leaf) (Tree, error) {
			i := slices.Index(alt.dependsOn, sub.Operator)
			if i < 0 {
				return nil, errs.Filterf("replacer produced unexpected operator %q", sub.Operator)
			}
			return deps[i](sub, env)
		})
	}
}

// HasEquivalentTree reports whether op can be expressed with allowed
// operators on a column of type t.
func HasEquivalentTree(op schema.Operator, allowed schema.OperatorSet, t schema.PrimitiveType) (bool, error) {
	fn, err := defaultResolver.lookup(op, allowed, t)
	return fn != nil, err
}

// GetEquivalentTree rewrites leaf using only allowed operators, anchoring
// date-relative operators at the current time in tz.
func GetEquivalentTree(leaf Leaf, allowed schema.OperatorSet, t schema.PrimitiveType, tz *time.Location) (Tree, bool, error) {
	return GetEquivalentTreeAt(leaf, allowed, t, tz, time.Now())
}

// GetEquivalentTreeAt is GetEquivalentTree with an explicit "now". ok is
// false when no equivalent exists.
func GetEquivalentTreeAt(leaf Leaf, allowed schema.OperatorSet, t schema.PrimitiveType, tz *time.Location, now time.Time) (Tree, bool, error) {
	fn, err := defaultResolver.lookup(leaf.Operator, allowed, t)
	if err != nil || fn == nil {
		return nil, false, err
	}
	if tz == nil {
		tz = time.UTC
	}
	tree, err := fn(leaf, Env{Now: now, Location: tz, ColumnType: t})
	if err != nil {
		return nil, false, err
	}
	return tree, true, nil
}
