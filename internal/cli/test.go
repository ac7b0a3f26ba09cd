package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/harness"
)

// TestOptions are the test command flags.
type TestOptions struct {
	*RootOptions
	Update   bool     // regenerate golden files
	Filter   string   // scenario filter (glob pattern)
	Backends []string // backends to run on
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult aggregates every scenario of a run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

var testBackends = map[string]func() harness.Backend{
	"sqlite": harness.SQLite,
	"memory": harness.Memory,
}

// NewTestCommand returns the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios on every backend",
		Long: `Run scenario files on each backend against a fresh store and check that
every backend returns identical responses.

Each scenario names its own schema. When <scenarios-dir>/golden/<name>.golden
exists the transcript must match it byte for byte.

Exits 1 when any scenario fails and 2 when the directory or a flag is
unusable.

Examples:
  folio test ./scenarios
  folio test ./scenarios --filter "users_*"
  folio test ./scenarios --update
  folio test ./scenarios --backends memory --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringSliceVar(&opts.Backends, "backends", []string{"sqlite", "memory"}, "backends to compare (sqlite, memory)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+scenariosDir)
	}

	var backends []harness.Backend
	for _, name := range opts.Backends {
		open, ok := testBackends[name]
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q: use sqlite or memory", name))
		}
		backends = append(backends, open())
	}
	h := harness.New(
		harness.WithBackends(backends...),
		harness.WithLogger(opts.logger(cmd.ErrOrStderr())),
	)

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := opts.formatter(cmd)
	if len(scenarioFiles) == 0 && !formatter.isJSON() {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range scenarioFiles {
		sr := runScenario(h, file, opts, cmd)
		if !formatter.isJSON() {
			printScenarioResult(formatter, sr)
		}
		result.add(sr)
	}
	return reportTests(formatter, result)
}

func (r *TestResult) add(sr ScenarioResult) {
	r.Scenarios = append(r.Scenarios, sr)
	r.Total++
	if sr.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// findScenarioFiles lists the YAML files directly in dir, sorted.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// runScenario executes one scenario file and checks its golden file.
func runScenario(h *harness.Harness, file string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	name := scenarioName(file)

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)}}
	}

	result, err := h.Run(cmd.Context(), scenario)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}
	if !result.Pass {
		return ScenarioResult{Name: name, Errors: result.Errors}
	}

	goldenPath := goldenFilePath(file)
	snapshot := harness.Snapshot(result)

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to create golden directory: %v", err)}}
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to write golden file: %v", err)}}
		}
		return ScenarioResult{Name: name, Pass: true}
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		// Without a golden file the expectations and agreement decide.
		return ScenarioResult{Name: name, Pass: true}
	}
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to read golden file: %v", err)}}
	}
	if !bytes.Equal(want, snapshot) {
		return ScenarioResult{Name: name, Errors: []string{"transcript does not match golden file (run with --update to regenerate)"}}
	}
	return ScenarioResult{Name: name, Pass: true}
}

func printScenarioResult(f *OutputFormatter, sr ScenarioResult) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	fmt.Fprintf(f.Writer, "%s %s\n", mark, sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(f.Writer, "    %s\n", e)
	}
}

func scenarioName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioName(scenarioFile)+".golden")
}

// reportTests writes the summary. Any failed scenario makes the command
// exit with ExitFailure.
func reportTests(f *OutputFormatter, result TestResult) error {
	var failed error
	if result.Failed > 0 {
		failed = NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}

	if f.isJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_TEST_FAILED", Message: failed.Error()}
		}
		if err := f.encode(resp, true); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintf(f.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failed == nil {
		fmt.Fprintln(f.Writer, "✓ All scenarios passed")
	}
	return failed
}
