package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Validation("slug", "value must be unique")
	assert.Equal(t, "VALIDATION_ERROR: slug: value must be unique", err.Error())

	err.Collection = "posts"
	assert.Equal(t, "VALIDATION_ERROR: slug: value must be unique (collection=posts)", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := fmt.Errorf("update posts: %w", WriteConflict(cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeWriteConflict, CodeOf(err))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"write conflict", WriteConflict(errors.New("busy")), true},
		{"backend unavailable", BackendUnavailable(errors.New("dial")), true},
		{"validation", Validation("title", "required"), false},
		{"unknown field", UnknownField("nope"), false},
		{"aborted", TransactionAborted(errors.New("boom")), false},
		{"plain", errors.New("plain"), false},
		{"wrapped", fmt.Errorf("x: %w", WriteConflict(nil)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestFieldOf(t *testing.T) {
	err := fmt.Errorf("create: %w", Validation("items.1.title", "required"))
	assert.Equal(t, "items.1.title", FieldOf(err))
	assert.True(t, IsValidation(err))
	assert.Equal(t, "", FieldOf(errors.New("x")))
}

func TestWithCollection(t *testing.T) {
	err := WithCollection(UnknownField("a.b"), "posts")
	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "posts", e.Collection)

	// existing collection is kept
	err = WithCollection(err, "pages")
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "posts", e.Collection)
}
