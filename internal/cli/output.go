package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/folio/internal/adapter"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and was rejected: bad query, failed scenario, invalid schema
	ExitCommandError = 2 // the command could not run: bad flags, unreadable schema, unreachable backend
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every --format json output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of CLIResponse. Code is an error taxonomy
// code for operation failures and an E-code for schema and test failures.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or as a JSON envelope.
// Diagnostics go to ErrWriter so they never corrupt JSON on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) encode(v any, indent bool) error {
	enc := json.NewEncoder(f.Writer)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Success writes data. Text format prints it with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data}, false)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Document writes a JSON-shaped payload. Text format indents it.
func (f *OutputFormatter) Document(data any) error {
	if f.isJSON() {
		return f.Success(data)
	}
	return f.encode(data, true)
}

// Response writes the result of a dispatched request. An error response
// is written with Error and returned as an ExitFailure.
func (f *OutputFormatter) Response(resp adapter.Response) error {
	switch {
	case resp.Error != nil:
		_ = f.Error(resp.Error.Code, resp.Error.Message, resp.Error)
		return NewExitError(ExitFailure, resp.Error.Code+": "+resp.Error.Message)
	case resp.NotFound:
		return f.Document(map[string]any{"notFound": true})
	case resp.Count != nil:
		return f.Document(map[string]any{"count": *resp.Count})
	case resp.Docs != nil:
		return f.Document(resp.Docs)
	default:
		return f.Document(resp.Doc)
	}
}

// Error writes a failure. Details are shown in text format only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		}, false)
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Debugf writes a diagnostic line when verbose.
func (f *OutputFormatter) Debugf(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
