package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Schema is the schema file or CUE directory.
	Schema string

	// DB selects the backend: sqlite://path, postgres://..., mongodb://host/db
	// or memory://.
	DB string

	// MongoTransactions runs MongoDB writes in multi-document transactions,
	// which need a replica set.
	MongoTransactions bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the folio CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "folio",
		Short: "folio - schema-driven content storage",
		Long: `folio stores documents described by a declarative schema on a
relational (SQLite, PostgreSQL) or document (MongoDB, in-memory) backend
and answers the same queries identically on each.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logs on stderr)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Schema, "schema", "s", "folio.cue", "schema file (.cue, .yaml) or CUE directory")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "sqlite://folio.db", "backend URL (sqlite://, postgres://, mongodb://, memory://)")
	cmd.PersistentFlags().BoolVar(&opts.MongoTransactions, "mongo-transactions", true, "use multi-document transactions on MongoDB")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// logger returns the structured logger for a command. Logs always go to
// stderr so they never mix with JSON output.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
