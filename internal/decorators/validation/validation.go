// Package validation checks written values against per-field rules and
// advertises the rules in the schema.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/schema"
)

type Collection struct {
	*decorators.Collection

	order []string
	rules map[string][]schema.Validation
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		v := &Collection{rules: map[string][]schema.Validation{}}
		v.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: v.refineSchema})
		return v
	})
}

// AddValidation attaches rule to the column name.
func (c *Collection) AddValidation(name string, rule schema.Validation) error {
	col, ok := c.Child().Schema().Fields[name].(schema.Column)
	if !ok {
		return errs.Configurationf("cannot add validation on %s.%s: not a column", c.Name(), name)
	}
	if col.IsReadOnly {
		return errs.Configurationf("cannot add validators on a readonly field %s.%s", c.Name(), name)
	}
	if !rule.Operator.IsValid() {
		return errs.Configurationf("unknown validation operator %q on %s.%s", rule.Operator, c.Name(), name)
	}
	if _, seen := c.rules[name]; !seen {
		c.order = append(c.order, name)
	}
	c.rules[name] = append(c.rules[name], rule)
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, rules := range c.rules {
		col, ok := s.Fields[name].(schema.Column)
		if !ok {
			continue
		}
		col.Validations = append(append([]schema.Validation{}, col.Validations...), rules...)
		s.Fields[name] = col
	}
	return s
}

func (c *Collection) Create(ctx context.Context, caller *collection.Caller, records []collection.Record) ([]collection.Record, error) {
	for _, r := range records {
		if err := c.validate(caller, r, true); err != nil {
			return nil, err
		}
	}
	return c.Collection.Create(ctx, caller, records)
}

func (c *Collection) Update(ctx context.Context, caller *collection.Caller, f filter.Filter, patch collection.Record) error {
	if err := c.validate(caller, patch, false); err != nil {
		return err
	}
	return c.Collection.Update(ctx, caller, f, patch)
}

// validate runs the rules of every field of record, or only of the fields
// present in record when all is false. A nil value is only checked by
// PRESENT rules.
func (c *Collection) validate(caller *collection.Caller, record collection.Record, all bool) error {
	ev := condtree.Evaluation{Source: collection.Source(c), Location: caller.Location()}
	for _, name := range c.order {
		value, present := record[name]
		if !all && !present {
			continue
		}
		for _, rule := range c.rules[name] {
			if value == nil && rule.Operator != schema.OpPresent {
				continue
			}
			ok, err := condtree.NewLeaf(name, rule.Operator, rule.Value).Match(record, ev)
			if err != nil {
				return err
			}
			if !ok {
				return errs.Validationf("%s failed validation rule: '%s'", name, describe(rule))
			}
		}
	}
	return nil
}

func describe(rule schema.Validation) string {
	if rule.Value == nil {
		return string(rule.Operator)
	}
	if items, ok := ir.AsSlice(rule.Value); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = ir.ToString(item)
		}
		return fmt.Sprintf("%s(%s)", rule.Operator, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s(%s)", rule.Operator, ir.ToString(rule.Value))
}
