package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a transcript as one canonical JSON response per line.
func Snapshot(result *Result) []byte {
	var buf bytes.Buffer
	for _, step := range result.Transcript {
		buf.Write(step)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden. The scenario must also pass.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func (h *Harness) RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := h.Run(t.Context(), scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(result))
	return result
}
