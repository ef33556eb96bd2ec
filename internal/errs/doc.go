// Package errs defines the error taxonomy shared by every layer of the toolkit.
//
// Errors carry a Code so that callers (the CLI, the scenario harness, an
// eventual transport layer) can translate them without string matching:
//
//	if errs.IsValidationError(err) {
//	    // 400-style response
//	}
//
// Constructors attach a stack trace through github.com/cockroachdb/errors;
// predicates use errors.As and therefore see through wrapping.
package errs
