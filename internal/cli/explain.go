package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/querydoc"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqlstore"
	"github.com/roach88/folio/internal/where"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Where  string
	Sort   string
	Locale string
	Limit  int
	Page   int
}

// Explanation is the compiled form of a find query.
type Explanation struct {
	Backend string `json:"backend"`

	// SQL and Args are set for relational backends.
	SQL  string `json:"sql,omitempty"`
	Args []any  `json:"args,omitempty"`

	// Filter and Sort are set for document backends, as relaxed extended JSON.
	Filter json.RawMessage `json:"filter,omitempty"`
	Sort   json.RawMessage `json:"sort,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <collection>",
		Short: "Show the query a find compiles to",
		Long: `Compile a where expression and sort for the backend selected by --db and
print the result without connecting to a database.

Relational backends print the parameterized SELECT and its arguments.
Document backends print the filter and sort documents; relationship
traversals, which run as separate queries, are shown as placeholders.

Examples:
  folio explain posts --where '{"title": {"like": "hello"}}' --sort -createdAt
  folio explain posts --db mongodb://localhost/site --where '{"author.name": {"equals": "Ann"}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "where expression (JSON or YAML)")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort keys, e.g. title,-createdAt")
	cmd.Flags().StringVar(&opts.Locale, "locale", "", "locale conditions apply to (default locale when empty, all for any)")
	cmd.Flags().IntVar(&opts.Limit, "limit", adapter.DefaultLimit, "page size (0 for no limit)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")

	return cmd
}

func runExplain(opts *ExplainOptions, slug string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := loadSchema(opts.RootOptions)
	if err != nil {
		return err
	}
	u, err := parseDBURL(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid backend", err)
	}

	ex, err := explain(cmd.Context(), cfg, u, slug, opts)
	if err != nil {
		return outputOperationError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ex)
	}
	if ex.SQL != "" {
		fmt.Fprintln(formatter.Writer, ex.SQL)
		fmt.Fprintf(formatter.Writer, "-- args: %v\n", ex.Args)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "filter: %s\nsort:   %s\n", ex.Filter, ex.Sort)
	return nil
}

func explain(ctx context.Context, cfg *schema.Config, u dbURL, slug string, opts *ExplainOptions) (*Explanation, error) {
	coll, ok := cfg.Collection(slug)
	if !ok {
		return nil, dberr.UnknownCollection(slug)
	}

	w, err := parseWhereFlag(opts.Where)
	if err != nil {
		return nil, err
	}
	keys := where.ParseSort(opts.Sort)
	if len(keys) == 0 {
		keys = adapter.DefaultSort(coll)
	}
	locale := opts.Locale
	if locale == "" {
		locale = cfg.DefaultLocale()
	}
	if opts.Limit < 0 {
		return nil, dberr.InvalidValue("limit", "limit must not be negative")
	}
	offset := 0
	if opts.Limit > 0 && opts.Page > 1 {
		offset = (opts.Page - 1) * opts.Limit
	}

	if u.relational() {
		st, err := sqlstore.New(nil, u.dialect(), cfg)
		if err != nil {
			return nil, err
		}
		layout, err := st.Layout(coll)
		if err != nil {
			return nil, err
		}
		pred, err := st.Compiler().Where(layout, w, locale)
		if err != nil {
			return nil, err
		}
		sel, err := st.Compiler().Select(layout, pred, keys, locale, opts.Limit, offset)
		if err != nil {
			return nil, err
		}
		return &Explanation{
			Backend: st.Name(),
			SQL:     u.dialect().Rebind(sel.SQL),
			Args:    sel.Args,
		}, nil
	}

	c := querydoc.NewCompiler(cfg)
	var resolve querydoc.Resolver
	resolve = func(ctx context.Context, target *schema.Collection, cond where.Expr, locale string) ([]string, error) {
		nested, err := c.Filter(ctx, target, cond, locale, resolve)
		if err != nil {
			return nil, err
		}
		data, err := bson.MarshalExtJSON(nested, false, false)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("<ids of %s matching %s>", target.Slug, data)}, nil
	}

	filter, err := c.Filter(ctx, coll, w, locale, resolve)
	if err != nil {
		return nil, err
	}
	sort, err := c.Sort(coll, keys, locale)
	if err != nil {
		return nil, err
	}
	ex := &Explanation{Backend: "doc/" + u.Scheme}
	if ex.Filter, err = bson.MarshalExtJSON(filter, false, false); err != nil {
		return nil, err
	}
	if ex.Sort, err = bson.MarshalExtJSON(sort, false, false); err != nil {
		return nil, err
	}
	return ex, nil
}
