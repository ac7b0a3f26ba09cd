// Package dberr defines the error taxonomy shared by the filter compilers,
// the assemblers, the storage backends and the adapter operations.
//
// Every failure reported by the core is a *Error carrying a Code. Callers
// branch on the code with the IsXxx helpers, which use errors.As so wrapped
// errors are matched too. NotFound is deliberately absent: a missing
// document is a valid empty result, reported as found=false.
package dberr

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeUnknownField indicates a path that does not resolve against the schema.
	CodeUnknownField Code = "UNKNOWN_FIELD"

	// CodeUnknownCollection indicates a collection or global slug that is not configured.
	CodeUnknownCollection Code = "UNKNOWN_COLLECTION"

	// CodeInvalidOperator indicates an operator not defined for the resolved field kind.
	CodeInvalidOperator Code = "INVALID_OPERATOR"

	// CodeInvalidValue indicates an operand that could not be coerced to the field type.
	CodeInvalidValue Code = "INVALID_VALUE"

	// CodeValidation indicates a rejected write (required, unique, type).
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeWriteConflict indicates a backend-reported concurrent modification.
	CodeWriteConflict Code = "WRITE_CONFLICT"

	// CodeTransactionAborted indicates a multi-row write that was rolled back.
	CodeTransactionAborted Code = "TRANSACTION_ABORTED"

	// CodeBackendUnavailable indicates a connectivity failure.
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
)

// Error is the structured error returned by every layer of the core.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Collection is the collection slug the operation targeted, if known.
	Collection string

	// Field is the dotted field path the error refers to, if any.
	// Always set for CodeValidation.
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, typically a driver error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Collection != "" {
		msg = fmt.Sprintf("%s (collection=%s)", msg, e.Collection)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the operation unchanged.
func (e *Error) Retryable() bool {
	return e.Code == CodeWriteConflict || e.Code == CodeBackendUnavailable
}

// UnknownField creates an Error for an unresolvable field path.
func UnknownField(path string) *Error {
	return &Error{Code: CodeUnknownField, Field: path, Message: "unknown field"}
}

// UnknownCollection creates an Error for an unconfigured slug.
func UnknownCollection(slug string) *Error {
	return &Error{Code: CodeUnknownCollection, Collection: slug, Message: "collection is not configured"}
}

// InvalidOperator creates an Error for an operator the field kind does not support.
func InvalidOperator(path, operator, kind string) *Error {
	return &Error{
		Code:    CodeInvalidOperator,
		Field:   path,
		Message: fmt.Sprintf("operator %q is not supported on %s fields", operator, kind),
	}
}

// InvalidValue creates an Error for a failed operand coercion.
func InvalidValue(path string, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidValue, Field: path, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a field-level validation Error.
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

// WriteConflict wraps a backend conflict error.
func WriteConflict(cause error) *Error {
	return &Error{Code: CodeWriteConflict, Message: "concurrent modification", Err: cause}
}

// TransactionAborted wraps the cause of a rolled back write.
func TransactionAborted(cause error) *Error {
	return &Error{Code: CodeTransactionAborted, Message: "write rolled back", Err: cause}
}

// BackendUnavailable wraps a connectivity error.
func BackendUnavailable(cause error) *Error {
	return &Error{Code: CodeBackendUnavailable, Message: "backend unavailable", Err: cause}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FieldOf returns the Field of the first *Error in err's chain, or "".
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return Is(err, CodeValidation)
}

// IsRetryable returns true for write conflicts and connectivity failures.
// Compilation errors are deterministic and never retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// WithCollection sets the collection on err if it is an *Error without one.
func WithCollection(err error, slug string) error {
	var e *Error
	if errors.As(err, &e) && e.Collection == "" {
		e.Collection = slug
	}
	return err
}
