package config

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Load error codes.
const (
	ErrCodeNotFound    = "E001" // path not found
	ErrCodeNoFiles     = "E002" // directory without CUE files
	ErrCodeLoadFailed  = "E003" // CUE load failed
	ErrCodeBuildFailed = "E004" // CUE evaluation or schema constraint failed
	ErrCodeDecode      = "E005" // malformed YAML or JSON
	ErrCodeFormat      = "E006" // unsupported file extension
)

// LoadError reports a failure to read or decode a schema file. Problems in
// a well-formed schema are reported as *schema.InvalidError instead.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// cueError converts the first CUE error to a LoadError. The position is
// the first one in a user file, not in the built-in definition.
func cueError(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	for _, pos := range errors.Positions(first) {
		if pos.Filename() != definitionFile {
			le.Pos = pos
			break
		}
	}
	return le
}
