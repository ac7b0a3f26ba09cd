package harness

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of a scenario run across backends.
type Result struct {
	// Pass is true when every expectation and assertion held on every
	// backend and the backends agreed on every response.
	Pass bool `json:"pass"`

	// Backends lists the backends the scenario ran on, in order.
	Backends []string `json:"backends"`

	// Transcript holds the canonical JSON response of each step, taken
	// from the first backend.
	Transcript []json.RawMessage `json:"transcript"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Transcript: []json.RawMessage{},
		Errors:     []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// run is what one backend produced for a scenario.
type run struct {
	backend    string
	transcript []json.RawMessage
	errors     []string
}

func (r *run) fail(format string, args ...any) {
	r.errors = append(r.errors, r.backend+": "+fmt.Sprintf(format, args...))
}
