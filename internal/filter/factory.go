package filter

import (
	"time"

	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema"
)

// PreviousPeriod rewrites every period leaf of f (today, previous_month,
// previous_x_days...) into the bracket of the period just before it. Charts
// use it to compare a value against its previous period. Leaves using
// other operators make the call fail.
func PreviousPeriod(f Filter, src schema.Source, now time.Time) (Filter, error) {
	if f.ConditionTree == nil {
		return Filter{}, errs.Filterf("previous period needs a condition tree")
	}
	t, err := f.ConditionTree.ReplaceErr(func(l condtree.Leaf) (condtree.Tree, error) {
		columnType := schema.TypeDate
		if src != nil {
			c, err := schema.ColumnAt(src, l.Field)
			if err != nil {
				return nil, err
			}
			columnType = c.ColumnType
		}
		return condtree.PreviousPeriodTree(l, columnType, f.Location(), now)
	})
	if err != nil {
		return Filter{}, err
	}
	return f.WithConditionTree(t), nil
}
