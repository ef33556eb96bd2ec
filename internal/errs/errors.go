package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error is the typed error raised by the toolkit.
//
// Error categories:
//   - Configuration: invalid customization (unknown field, duplicate name, bad relation keys).
//     Raised while the stack is being configured; fatal to startup.
//   - Validation: a record failed a declared field validation during create/update.
//   - Filter: a condition tree cannot be satisfied by the collection.
//   - Cycle: a write handler or operator replacement revisited itself.
//   - NotFound: unknown collection, field, action or chart.
//   - Forbidden / Unprocessable: raised by hooks on behalf of the customer.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Collection names the affected collection, if any.
	Collection string

	// Field names the affected field, if any.
	Field string

	// Details contains additional context.
	Details map[string]string
}

// Code categorizes toolkit errors.
type Code string

const (
	CodeConfiguration Code = "CONFIGURATION"
	CodeValidation    Code = "VALIDATION"
	CodeFilter        Code = "FILTER"
	CodeCycle         Code = "CYCLE_DETECTED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeForbidden     Code = "FORBIDDEN"
	CodeUnprocessable Code = "UNPROCESSABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Collection != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s (collection=%s, field=%s)", e.Code, e.Message, e.Collection, e.Field)
	}
	if e.Collection != "" {
		return fmt.Sprintf("%s: %s (collection=%s)", e.Code, e.Message, e.Collection)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithCollection returns a copy of e annotated with a collection name.
func (e *Error) WithCollection(name string) *Error {
	c := *e
	c.Collection = name
	return &c
}

// WithField returns a copy of e annotated with a field name.
func (e *Error) WithField(name string) *Error {
	c := *e
	c.Field = name
	return &c
}

func newf(code Code, format string, args ...any) error {
	return errors.WithStackDepth(&Error{Code: code, Message: fmt.Sprintf(format, args...)}, 2)
}

// Configurationf creates a configuration error.
func Configurationf(format string, args ...any) error {
	return newf(CodeConfiguration, format, args...)
}

// Validationf creates a validation error.
func Validationf(format string, args ...any) error {
	return newf(CodeValidation, format, args...)
}

// Filterf creates a filter/equivalence error.
func Filterf(format string, args ...any) error {
	return newf(CodeFilter, format, args...)
}

// Cyclef creates a cycle detection error.
func Cyclef(format string, args ...any) error {
	return newf(CodeCycle, format, args...)
}

// NotFoundf creates a not-found error.
func NotFoundf(format string, args ...any) error {
	return newf(CodeNotFound, format, args...)
}

// Forbiddenf creates a forbidden error.
func Forbiddenf(format string, args ...any) error {
	return newf(CodeForbidden, format, args...)
}

// Unprocessablef creates an unprocessable error.
func Unprocessablef(format string, args ...any) error {
	return newf(CodeUnprocessable, format, args...)
}

// CodeOf returns the code of the first toolkit Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfigurationError returns true if the error is a configuration error.
// Cycle errors raised while configuring also count as configuration errors.
func IsConfigurationError(err error) bool {
	code := CodeOf(err)
	return code == CodeConfiguration || code == CodeCycle
}

// IsValidationError returns true if the error is a validation error.
func IsValidationError(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsFilterError returns true if the error is a filter/equivalence error.
func IsFilterError(err error) bool {
	return CodeOf(err) == CodeFilter
}

// IsCycleError returns true if the error is a cycle detection error.
func IsCycleError(err error) bool {
	return CodeOf(err) == CodeCycle
}

// IsNotFoundError returns true if the error is a not-found error.
func IsNotFoundError(err error) bool {
	return CodeOf(err) == CodeNotFound
}
