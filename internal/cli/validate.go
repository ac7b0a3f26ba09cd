package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/config"
	"github.com/roach88/folio/internal/schema"
)

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	Collections int                 `json:"collections,omitempty"`
	Globals     int                 `json:"globals,omitempty"`
	Errors      []ValidationProblem `json:"errors,omitempty"`
}

// ValidationProblem is one schema problem.
type ValidationProblem struct {
	Path    string `json:"path,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema]",
		Short: "Validate a schema without touching a database",
		Long: `Load a schema file or CUE directory and check every collection, global,
field and block against the schema rules.

Defaults to the --schema path when no argument is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Schema
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.Debugf("loading schema from %s", path)

	cfg, err := config.Load(path)
	if err == nil {
		return outputValidateSuccess(formatter, cfg)
	}

	var invalid *schema.InvalidError
	if errors.As(err, &invalid) {
		problems := make([]ValidationProblem, len(invalid.Problems))
		for i, p := range invalid.Problems {
			problems[i] = ValidationProblem{Path: p.Path, Code: p.Code, Message: p.Message}
		}
		return outputValidationErrors(formatter, problems)
	}

	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		return outputValidateError(formatter, config.ErrCodeLoadFailed, err.Error(), nil)
	}
	switch loadErr.Code {
	case config.ErrCodeBuildFailed, config.ErrCodeDecode:
		// The file was read but its content is wrong.
		return outputValidationErrors(formatter, []ValidationProblem{{
			Code:    loadErr.Code,
			Message: loadErr.Message,
			Line:    lineOf(loadErr.Pos),
		}})
	default:
		return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
	}
}

func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

func outputValidateSuccess(f *OutputFormatter, cfg *schema.Config) error {
	if f.isJSON() {
		return f.Success(ValidationResult{Valid: true, Collections: len(cfg.Collections), Globals: len(cfg.Globals)})
	}
	fmt.Fprintf(f.Writer, "✓ schema valid (%d collection(s), %d global(s))\n", len(cfg.Collections), len(cfg.Globals))
	return nil
}

// outputValidateError reports a schema that could not be read at all.
func outputValidateError(f *OutputFormatter, code, message string, details any) error {
	_ = f.Error(code, message, details)
	return NewExitError(ExitCommandError, code+": "+message)
}

// outputValidationErrors reports every problem found in a readable schema.
func outputValidationErrors(f *OutputFormatter, problems []ValidationProblem) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))

	if f.isJSON() {
		err := f.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Errors: problems},
			Error:  &CLIError{Code: problems[0].Code, Message: problems[0].Message},
		}, true)
		if err != nil {
			return err
		}
		return failed
	}

	fmt.Fprint(f.Writer, "✗ Validation failed\n\n")
	for _, p := range problems {
		loc := p.Code
		if p.Path != "" {
			loc += ": " + p.Path
		}
		if p.Line > 0 {
			loc = fmt.Sprintf("%s (line %d)", loc, p.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n", loc, p.Message)
	}
	return failed
}
