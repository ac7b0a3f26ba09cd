// Package sqlstore is the relational backend.
//
// Every collection is stored in the table tree derived by sqllayout: one
// parent row, one child table per array field or blocks variant, and a
// locale table next to any table with localized columns. Filters compile
// through querysql. All writes of one operation share one transaction.
//
// Two engines are supported through database/sql: SQLite
// (github.com/mattn/go-sqlite3) and PostgreSQL
// (github.com/jackc/pgx/v5/stdlib).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/querysql"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqllayout"
)

// Store implements adapter.Backend over a database/sql connection.
type Store struct {
	db       *sql.DB
	dialect  querysql.Dialect
	cfg      *schema.Config
	layouts  map[string]*sqllayout.Layout
	compiler *querysql.Compiler

	newKey func() string
	now    func() time.Time
}

var _ adapter.Backend[querysql.Fragment, *RowSet] = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyGenerator replaces the generator of child row keys.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newKey = fn
	}
}

// WithNow replaces the clock stamping migration records.
func WithNow(fn func() time.Time) Option {
	return func(s *Store) {
		s.now = fn
	}
}

// New creates a Store over an open database. It derives the layout of
// every collection and fails when a schema does not map onto tables.
func New(db *sql.DB, d querysql.Dialect, cfg *schema.Config, opts ...Option) (*Store, error) {
	layouts := make(map[string]*sqllayout.Layout)
	for _, coll := range cfg.All() {
		l, err := sqllayout.Build(coll)
		if err != nil {
			return nil, err
		}
		layouts[coll.Slug] = l
	}

	s := &Store{
		db:       db,
		dialect:  d,
		cfg:      cfg,
		layouts:  layouts,
		compiler: querysql.NewCompiler(d, layouts, cfg.Locales(), cfg.DefaultLocale()),
		newKey: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenSQLite creates or opens a SQLite database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement, which child and locale tables rely on
//     for cascading deletes
func OpenSQLite(path string, cfg *schema.Config, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time; pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s, err := New(db, querysql.SQLite, cfg, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL through the pgx driver.
func OpenPostgres(ctx context.Context, dsn string, cfg *schema.Config, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify(nil, fmt.Errorf("failed to connect to database: %w", err), false)
	}

	s, err := New(db, querysql.Postgres, cfg, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Name implements adapter.Backend.
func (s *Store) Name() string {
	return "sql/" + s.dialect.Name
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Layout returns the table layout of a collection.
func (s *Store) Layout(coll *schema.Collection) (*sqllayout.Layout, error) {
	l, ok := s.layouts[coll.Slug]
	if !ok {
		return nil, fmt.Errorf("sqlstore: no layout for collection %q", coll.Slug)
	}
	return l, nil
}

// Compiler returns the filter compiler bound to the store's layouts.
func (s *Store) Compiler() *querysql.Compiler {
	return s.compiler
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// txn wraps a transaction so commit failures are classified like every
// other write failure.
type txn struct {
	*sql.Tx
	store *Store
}

func (t *txn) Commit() error {
	if err := t.Tx.Commit(); err != nil {
		return classify(t.store.layouts, err, true)
	}
	return nil
}

// Begin implements adapter.Backend.
func (s *Store) Begin(ctx context.Context) (adapter.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(s.layouts, fmt.Errorf("begin: %w", err), false)
	}
	return &txn{Tx: tx, store: s}, nil
}

func (s *Store) sqlTx(tx adapter.Tx) (*sql.Tx, error) {
	t, ok := tx.(*txn)
	if !ok {
		return nil, fmt.Errorf("sqlstore: transaction %T was not started by this store", tx)
	}
	return t.Tx, nil
}
