// Package action registers customer actions and renders their forms.
package action

import (
	"context"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/decorators"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
)

// Handler runs an action. A zero result is reported as a plain success.
type Handler func(ctx context.Context, ac *Context, b *ResultBuilder) (collection.ActionResult, error)

// Field is one form field. If and Value make the form dynamic.
type Field struct {
	Type           collection.ActionFieldType
	Label          string
	Description    string
	IsRequired     bool
	IsReadOnly     bool
	DefaultValue   any
	EnumValues     []string
	CollectionName string

	If    func(ctx context.Context, ac *Context) (bool, error)
	Value func(ctx context.Context, ac *Context) (any, error)
}

func (f Field) dynamic() bool { return f.If != nil || f.Value != nil }

type Action struct {
	Scope        schema.ActionScope
	GenerateFile bool
	Form         []Field
	Execute      Handler
}

type Collection struct {
	*decorators.Collection
	actions map[string]Action
}

// NewDatasource wraps every collection of child.
func NewDatasource(child collection.Datasource) *decorators.Datasource[*Collection] {
	return decorators.NewDatasource(child, func(c collection.Collection, owner collection.Datasource) *Collection {
		a := &Collection{actions: map[string]Action{}}
		a.Collection = decorators.NewCollection(c, owner, decorators.Hooks{RefineSchema: a.refineSchema})
		return a
	})
}

// AddAction registers an action.
func (c *Collection) AddAction(name string, a Action) error {
	switch a.Scope {
	case schema.ScopeSingle, schema.ScopeBulk, schema.ScopeGlobal:
	default:
		return errs.Configurationf("action %q has an invalid scope %q", name, a.Scope)
	}
	if a.Execute == nil {
		return errs.Configurationf("action %q has no handler", name)
	}
	if _, ok := c.Schema().Actions[name]; ok {
		return errs.Configurationf("action %q already exists in %s", name, c.Name())
	}
	c.actions[name] = a
	c.MarkSchemaAsDirty()
	return nil
}

func (c *Collection) refineSchema(s schema.CollectionSchema) schema.CollectionSchema {
	for name, a := range c.actions {
		static := true
		for _, f := range a.Form {
			if f.dynamic() {
				static = false
				break
			}
		}
		s.Actions[name] = schema.ActionSchema{Scope: a.Scope, GenerateFile: a.GenerateFile, StaticForm: static}
	}
	return s
}

func (c *Collection) context(caller *collection.Caller, a Action, values map[string]any, f filter.Filter) *Context {
	return &Context{
		CustomizationContext: decorators.NewContext(c, caller),
		FormValues:           newFormValues(values),
		Filter:               f,
		Scope:                a.Scope,
	}
}

func (c *Collection) Execute(ctx context.Context, caller *collection.Caller, name string, data collection.Record, f filter.Filter) (collection.ActionResult, error) {
	a, ok := c.actions[name]
	if !ok {
		return c.Collection.Execute(ctx, caller, name, data, f)
	}
	b := &ResultBuilder{}
	result, err := a.Execute(ctx, c.context(caller, a, data, f), b)
	if err != nil {
		return collection.ActionResult{}, err
	}
	if result.Type == "" {
		return b.Success(""), nil
	}
	return result, nil
}

func (c *Collection) GetForm(ctx context.Context, caller *collection.Caller, name string, data collection.Record, f filter.Filter) ([]collection.ActionField, error) {
	a, ok := c.actions[name]
	if !ok {
		return c.Collection.GetForm(ctx, caller, name, data, f)
	}
	if len(a.Form) == 0 {
		return []collection.ActionField{}, nil
	}

	ac := c.context(caller, a, data, f)
	for _, field := range a.Form {
		if _, set := ac.FormValues.values[field.Label]; set {
			continue
		}
		value := field.DefaultValue
		if field.Value != nil {
			v, err := field.Value(ctx, ac)
			if err != nil {
				return nil, err
			}
			value = v
		}
		ac.FormValues.values[field.Label] = value
	}

	out := make([]collection.ActionField, 0, len(a.Form))
	for _, field := range a.Form {
		if field.If != nil {
			visible, err := field.If(ctx, ac)
			if err != nil {
				return nil, err
			}
			if !visible {
				continue
			}
		}
		out = append(out, collection.ActionField{
			Type:           field.Type,
			Label:          field.Label,
			Description:    field.Description,
			IsRequired:     field.IsRequired,
			IsReadOnly:     field.IsReadOnly,
			Value:          ac.FormValues.values[field.Label],
			DefaultValue:   field.DefaultValue,
			EnumValues:     field.EnumValues,
			CollectionName: field.CollectionName,
		})
	}
	for i := range out {
		out[i].WatchChanges = ac.FormValues.isUsed(out[i].Label)
	}
	return out, nil
}
