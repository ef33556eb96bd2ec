// Package decorators provides the wrap-and-refine base every capability
// layer builds on.
//
// A collection decorator wraps exactly one child collection. It memoizes
// its refined schema until MarkSchemaAsDirty is called on it or on any
// collection below it, and runs every filter through RefineFilter before
// delegating. A datasource decorator instantiates one collection decorator
// per child collection so a layer applies datasource-wide.
//
// Capability layers live in sub-packages, one per layer.
package decorators
