package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/folio/internal/adapter"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path of the schema file (CUE or YAML). Relative paths
	// are resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Setup requests establish initial state and must succeed.
	Setup []adapter.Request `yaml:"setup,omitempty"`

	// Steps are the requests under test. Their responses form the transcript.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one request with an optional expectation.
type Step struct {
	adapter.Request `yaml:",inline"`

	// Expect specifies the expected response. If nil, only cross-backend
	// agreement is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes an expected Response.
type Expect struct {
	// Error is the expected error code. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Field is the expected error field, checked when set.
	Field string `yaml:"field,omitempty"`

	NotFound bool `yaml:"notFound,omitempty"`
	Count    *int `yaml:"count,omitempty"`

	// TotalDocs is compared against a paginated result.
	TotalDocs *int `yaml:"totalDocs,omitempty"`

	// Doc is a subset of the returned document.
	Doc map[string]any `yaml:"doc,omitempty"`

	// Docs are subsets of the returned page, in order. The page must hold
	// exactly len(Docs) documents.
	Docs []map[string]any `yaml:"docs,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of final_state, count or not_found.
	Type string `yaml:"type"`

	Collection string `yaml:"collection"`

	// ID selects the document (final_state, not_found).
	ID string `yaml:"id,omitempty"`

	// Global makes Collection name a global (final_state).
	Global bool `yaml:"global,omitempty"`

	// Where selects documents (count, final_state without an id).
	Where map[string]any `yaml:"where,omitempty"`

	Locale string `yaml:"locale,omitempty"`
	Draft  bool   `yaml:"draft,omitempty"`

	// Expect is a subset of the selected document (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of matches (count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState = "final_state"
	AssertCount      = "count"
	AssertNotFound   = "not_found"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected so typos fail loudly. The schema path is resolved against the
// scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, req := range s.Setup {
		if err := validateRequest(req); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateRequest(step.Request); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateRequest(req adapter.Request) error {
	if req.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	if req.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	if a.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	switch a.Type {
	case AssertFinalState:
		if a.ID == "" && a.Where == nil && !a.Global {
			return fmt.Errorf("final_state requires id, where or global")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("final_state requires expect")
		}
	case AssertNotFound:
		if a.ID == "" {
			return fmt.Errorf("not_found requires id")
		}
	case AssertCount:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
