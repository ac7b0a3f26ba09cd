package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/config"
	"github.com/roach88/folio/internal/docstore"
	"github.com/roach88/folio/internal/querysql"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqlstore"
)

// Backend URL schemes.
const (
	SchemeSQLite   = "sqlite"
	SchemePostgres = "postgres"
	SchemeMongo    = "mongodb"
	SchemeMemory   = "memory"
)

// defaultMongoDatabase is used when a mongodb URL names no database.
const defaultMongoDatabase = "folio"

// dbURL is a parsed --db value.
type dbURL struct {
	Scheme string
	Raw    string

	// Path is the SQLite file, or the MongoDB database name.
	Path string
}

func parseDBURL(raw string) (dbURL, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return dbURL{}, fmt.Errorf("invalid --db %q: expected scheme://", raw)
	}
	u := dbURL{Scheme: scheme, Raw: raw, Path: rest}

	switch scheme {
	case SchemeSQLite:
		if rest == "" {
			return dbURL{}, fmt.Errorf("invalid --db %q: missing file path", raw)
		}
	case SchemePostgres, "postgresql":
		u.Scheme = SchemePostgres
	case SchemeMongo, "mongodb+srv":
		u.Scheme = SchemeMongo
		parsed, err := url.Parse(raw)
		if err != nil {
			return dbURL{}, fmt.Errorf("invalid --db %q: %w", raw, err)
		}
		u.Path = strings.TrimPrefix(parsed.Path, "/")
		if u.Path == "" {
			u.Path = defaultMongoDatabase
		}
	case SchemeMemory:
	default:
		return dbURL{}, fmt.Errorf("unsupported --db scheme %q: use sqlite, postgres, mongodb or memory", scheme)
	}
	return u, nil
}

// relational reports whether the URL selects a SQL backend.
func (u dbURL) relational() bool {
	return u.Scheme == SchemeSQLite || u.Scheme == SchemePostgres
}

func (u dbURL) dialect() querysql.Dialect {
	if u.Scheme == SchemePostgres {
		return querysql.Postgres
	}
	return querysql.SQLite
}

// session is an open adapter over the backend named by --db.
type session struct {
	cfg   *schema.Config
	ops   adapter.Operations
	close func() error
}

// loadSchema loads the --schema file, mapping failures to command errors.
func loadSchema(opts *RootOptions) (*schema.Config, error) {
	cfg, err := config.Load(opts.Schema)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	return cfg, nil
}

// openSession loads the schema and connects to the backend. The memory
// backend starts empty on every invocation.
func openSession(ctx context.Context, opts *RootOptions, logger *slog.Logger) (*session, error) {
	cfg, err := loadSchema(opts)
	if err != nil {
		return nil, err
	}
	u, err := parseDBURL(opts.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend", err)
	}

	aopts := []adapter.Option{adapter.WithLogger(logger)}
	s := &session{cfg: cfg}

	switch u.Scheme {
	case SchemeSQLite:
		st, err := sqlstore.OpenSQLite(u.Path, cfg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open sqlite", err)
		}
		s.ops, s.close = adapter.New(st, cfg, aopts...), st.Close
	case SchemePostgres:
		st, err := sqlstore.OpenPostgres(ctx, u.Raw, cfg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open postgres", err)
		}
		s.ops, s.close = adapter.New(st, cfg, aopts...), st.Close
	case SchemeMongo:
		db, err := docstore.ConnectMongo(ctx, u.Raw, u.Path, opts.MongoTransactions)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open mongodb", err)
		}
		st := docstore.New(db, cfg)
		s.ops = adapter.New(st, cfg, aopts...)
		s.close = func() error { return st.Close(context.WithoutCancel(ctx)) }
	case SchemeMemory:
		st := docstore.New(docstore.NewMemory(), cfg)
		s.ops = adapter.New(st, cfg, aopts...)
		s.close = func() error { return st.Close(ctx) }
	}

	logger.Debug("backend opened", "backend", s.ops.Backend(), "schema", opts.Schema)

	// Tables and indexes are created idempotently so every command works
	// against a fresh database.
	if err := s.ops.Migrate(ctx); err != nil {
		s.close()
		return nil, WrapExitError(ExitCommandError, "failed to migrate", err)
	}
	return s, nil
}
