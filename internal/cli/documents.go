package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/where"
)

// DocumentOptions holds the flags shared by the document commands.
type DocumentOptions struct {
	*RootOptions
	Locale         string
	FallbackLocale string
	Draft          bool
}

func (o *DocumentOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Locale, "locale", "", "locale to read or write (all for every locale)")
	cmd.Flags().StringVar(&o.FallbackLocale, "fallback-locale", "", "locale used when a value is missing (none to disable)")
	cmd.Flags().BoolVar(&o.Draft, "draft", false, "read or write the latest draft")
}

func (o *DocumentOptions) request(operation, collection string) adapter.Request {
	return adapter.Request{
		Operation:      operation,
		Collection:     collection,
		Locale:         o.Locale,
		FallbackLocale: o.FallbackLocale,
		Draft:          o.Draft,
	}
}

// FindOptions holds flags for the find command.
type FindOptions struct {
	DocumentOptions
	Where    string
	Sort     string
	Limit    int
	Page     int
	Versions bool
	Count    bool
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{DocumentOptions: DocumentOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "List documents matching a where expression",
		Long: `Find documents in a collection, paginated.

--where takes a JSON or YAML expression, @file to read one from a file,
or - to read stdin. --count prints only the number of matches and
--versions lists the stored versions instead of the documents.

Examples:
  folio find posts --where '{"views": {"greater_than": 10}}' --sort -views
  folio find posts --versions --where '{"parent": {"equals": "p1"}}'
  folio find users --count`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Versions && opts.Count {
				return NewExitError(ExitCommandError, "--versions and --count are mutually exclusive")
			}
			w, err := readInput(cmd, opts.Where)
			if err != nil {
				return err
			}

			req := opts.request(adapter.OpFind, args[0])
			switch {
			case opts.Count:
				req.Operation = adapter.OpCount
			case opts.Versions:
				req.Operation = adapter.OpFindVersions
			}
			req.Where = w
			req.Sort = opts.Sort
			req.Page = opts.Page
			if cmd.Flags().Changed("limit") {
				req.Limit = &opts.Limit
			}
			return runRequest(cmd, opts.RootOptions, req)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "where expression (JSON, YAML, @file or -)")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort keys, e.g. title,-createdAt")
	cmd.Flags().IntVar(&opts.Limit, "limit", adapter.DefaultLimit, "page size (0 for no limit)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().BoolVar(&opts.Versions, "versions", false, "list versions instead of documents")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matching documents")

	return cmd
}

// GetOptions holds flags for the get command.
type GetOptions struct {
	DocumentOptions
	Where   string
	Global  bool
	Version string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{DocumentOptions: DocumentOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "get <collection> [id]",
		Short: "Read one document, global or version",
		Long: `Read a single document by id, or the first document matching --where.

With --global the argument names a global. With --version the flag
value is a version id of the collection.

Examples:
  folio get posts p1 --locale fr
  folio get users --where '{"email": {"equals": "ann@example.com"}}'
  folio get settings --global
  folio get posts --version 0190c3a1-...`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opts.request(adapter.OpFindByID, args[0])
			if len(args) == 2 {
				req.ID = args[1]
			}

			switch {
			case opts.Global:
				if req.ID != "" || opts.Where != "" {
					return NewExitError(ExitCommandError, "--global takes no id or --where")
				}
				req.Operation = adapter.OpFindGlobal
			case opts.Version != "":
				if req.ID != "" {
					return NewExitError(ExitCommandError, "--version takes no id argument")
				}
				req.Operation, req.ID = adapter.OpFindVersionByID, opts.Version
			case opts.Where != "":
				if req.ID != "" {
					return NewExitError(ExitCommandError, "an id and --where are mutually exclusive")
				}
				w, err := readInput(cmd, opts.Where)
				if err != nil {
					return err
				}
				req.Operation, req.Where = adapter.OpFindOne, w
			case req.ID == "":
				return NewExitError(ExitCommandError, "an id, --where, --global or --version is required")
			}
			return runRequest(cmd, opts.RootOptions, req)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "return the first document matching (JSON, YAML, @file or -)")
	cmd.Flags().BoolVar(&opts.Global, "global", false, "read a global")
	cmd.Flags().StringVar(&opts.Version, "version", "", "read a version by id")

	return cmd
}

// WriteOptions holds flags for create and update.
type WriteOptions struct {
	DocumentOptions
	Data   string
	Where  string
	Global bool
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{DocumentOptions: DocumentOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Create a document",
		Long: `Create a document from --data, a JSON or YAML object, @file or -.

Examples:
  folio create users --data '{"name": "Ann", "email": "ann@example.com"}'
  folio create posts --data @post.yaml --draft`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readRequired(cmd, "data", opts.Data)
			if err != nil {
				return err
			}
			req := opts.request(adapter.OpCreate, args[0])
			req.Data = data
			return runRequest(cmd, opts.RootOptions, req)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "document data (JSON, YAML, @file or -)")

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{DocumentOptions: DocumentOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "update <collection> [id]",
		Short: "Update one document or a global",
		Long: `Merge --data into one document, selected by id or by the first match of
--where. With --global the argument names a global.

Examples:
  folio update posts p1 --data '{"title": "Bonjour"}' --locale fr
  folio update settings --global --data '{"footer": "(c) 2024"}'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readRequired(cmd, "data", opts.Data)
			if err != nil {
				return err
			}
			req := opts.request(adapter.OpUpdateOne, args[0])
			req.Data = data
			if len(args) == 2 {
				req.ID = args[1]
			}

			switch {
			case opts.Global:
				if req.ID != "" || opts.Where != "" {
					return NewExitError(ExitCommandError, "--global takes no id or --where")
				}
				req.Operation = adapter.OpUpdateGlobal
			case opts.Where != "":
				if req.ID != "" {
					return NewExitError(ExitCommandError, "an id and --where are mutually exclusive")
				}
				if req.Where, err = readInput(cmd, opts.Where); err != nil {
					return err
				}
			case req.ID == "":
				return NewExitError(ExitCommandError, "an id, --where or --global is required")
			}
			return runRequest(cmd, opts.RootOptions, req)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "fields to set (JSON, YAML, @file or -)")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "update the first document matching")
	cmd.Flags().BoolVar(&opts.Global, "global", false, "update a global")

	return cmd
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	DocumentOptions
	Where string
	One   bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{DocumentOptions: DocumentOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "delete <collection> [id]",
		Short: "Delete documents",
		Long: `Delete a document by id, or every document matching --where. With --one
only the first match of --where is deleted.

Examples:
  folio delete posts p1
  folio delete posts --where '{"views": {"equals": 0}}'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opts.request(adapter.OpDeleteOne, args[0])
			if len(args) == 2 {
				req.ID = args[1]
			}

			switch {
			case req.ID != "":
				if opts.Where != "" {
					return NewExitError(ExitCommandError, "an id and --where are mutually exclusive")
				}
			case opts.Where != "":
				w, err := readInput(cmd, opts.Where)
				if err != nil {
					return err
				}
				req.Where = w
				if !opts.One {
					req.Operation = adapter.OpDeleteMany
				}
			default:
				return NewExitError(ExitCommandError, "an id or --where is required")
			}
			return runRequest(cmd, opts.RootOptions, req)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "delete documents matching (JSON, YAML, @file or -)")
	cmd.Flags().BoolVar(&opts.One, "one", false, "with --where, delete only the first match")

	return cmd
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocumentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <collection> <version-id>",
		Short: "Restore a version as the published document",
		Long: `Copy a stored version back onto its document and mark it published.

Example:
  folio publish posts 0190c3a1-...`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opts.request(adapter.OpPublishVersion, args[0])
			req.ID = args[1]
			return runRequest(cmd, opts.RootOptions, req)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

// runRequest opens the backend, dispatches req and prints the response.
func runRequest(cmd *cobra.Command, opts *RootOptions, req adapter.Request) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	s, err := openSession(cmd.Context(), opts, logger)
	if err != nil {
		return err
	}
	defer s.close()

	logger.Debug("dispatch", "operation", req.Operation, "collection", req.Collection)
	return formatter.Response(s.ops.Dispatch(cmd.Context(), req))
}

// outputOperationError prints an error from the taxonomy and maps it to
// ExitFailure. Other errors are command errors.
func outputOperationError(formatter *OutputFormatter, err error) error {
	var e *dberr.Error
	if !errors.As(err, &e) {
		return WrapExitError(ExitCommandError, "command failed", err)
	}
	return formatter.Response(adapter.ErrorResponse(err))
}

// readInput decodes a flag holding a JSON or YAML object. "@path" reads the
// object from a file and "-" from stdin. An empty flag yields nil.
func readInput(cmd *cobra.Command, value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}

	var (
		data []byte
		err  error
	)
	switch {
	case value == "-":
		data, err = io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(value, "@"):
		data, err = os.ReadFile(value[1:])
	default:
		data = []byte(value)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read input", err)
	}

	// YAML is a superset of JSON, so one decoder covers both.
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid input", err)
	}
	if m == nil {
		return nil, NewExitError(ExitCommandError, "input must be an object")
	}
	return m, nil
}

func readRequired(cmd *cobra.Command, flag, value string) (map[string]any, error) {
	if value == "" {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s is required", flag))
	}
	return readInput(cmd, value)
}

// parseWhereFlag parses a literal where expression for explain.
func parseWhereFlag(value string) (where.Expr, error) {
	if value == "" {
		return where.And{}, nil
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(value), &m); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --where", err)
	}
	return where.Parse(m)
}
