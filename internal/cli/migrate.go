package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/docstore"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqlstore"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Print bool // print the statements instead of applying them
}

// MigrationPlan is the JSON payload of migrate --print.
type MigrationPlan struct {
	Backend    string   `json:"backend"`
	Statements []string `json:"statements,omitempty"`
	Indexes    []string `json:"indexes,omitempty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables or indexes of the schema",
		Long: `Create every table, child table, locale table and index the schema
needs on the backend selected by --db. Migration is idempotent.

With --print nothing is applied: relational backends print the DDL and
document backends print the indexes.

Examples:
  folio migrate --schema site.cue --db sqlite://site.db
  folio migrate --schema site.cue --db postgres://localhost/site --print`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Print, "print", false, "print statements without applying them")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Print {
		plan, err := planMigration(opts.RootOptions)
		if err != nil {
			return err
		}
		if formatter.Format == "json" {
			return formatter.Success(plan)
		}
		for _, stmt := range plan.Statements {
			fmt.Fprintf(formatter.Writer, "%s;\n", stmt)
		}
		for _, idx := range plan.Indexes {
			fmt.Fprintln(formatter.Writer, idx)
		}
		return nil
	}

	s, err := openSession(cmd.Context(), opts.RootOptions, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer s.close()

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"backend":     s.ops.Backend(),
			"collections": len(s.cfg.All()),
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Migrated %d collection(s) on %s\n", len(s.cfg.All()), s.ops.Backend())
	return nil
}

// planMigration derives the migration without connecting to a database.
func planMigration(opts *RootOptions) (*MigrationPlan, error) {
	cfg, err := loadSchema(opts)
	if err != nil {
		return nil, err
	}
	u, err := parseDBURL(opts.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend", err)
	}

	if u.relational() {
		st, err := sqlstore.New(nil, u.dialect(), cfg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to derive layout", err)
		}
		return &MigrationPlan{Backend: st.Name(), Statements: st.DDL()}, nil
	}

	plan := &MigrationPlan{Backend: "doc/" + u.Scheme}
	for _, coll := range cfg.All() {
		for _, idx := range docstore.Indexes(cfg, coll) {
			plan.Indexes = append(plan.Indexes, formatIndex(coll, idx))
		}
	}
	return plan, nil
}

func formatIndex(coll *schema.Collection, idx docstore.Index) string {
	kind := "index"
	if idx.Unique {
		kind = "unique index"
	}
	return fmt.Sprintf("%s %s on %s (%s)", kind, idx.Name, coll.Slug, idx.Key)
}
