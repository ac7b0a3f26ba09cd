// Package adapter implements the CRUD operations of the content store once,
// against the Backend capability interface.
//
// Every operation runs as one unit of work: compile the filter, execute,
// assemble the stored data into an all-locales document, then sanitize it
// for the request locale. An operation either returns its complete result
// or an error; no partial document is ever returned.
//
// Operations run in their own backend transaction unless the caller lends
// one through Op.Tx. A borrowed transaction is never committed, rolled back
// or retained by the adapter.
package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// DefaultLimit is the page size of Find when the query sets no limit.
const DefaultLimit = 10

// FallbackNone disables locale fallback for one operation.
const FallbackNone = "none"

// Op carries the per-operation context. It is passed explicitly to every
// call and never stored.
type Op struct {
	// Locale selects the translation to read and write. Empty means the
	// default locale; schema.AllLocales reads and writes locale maps.
	Locale string

	// FallbackLocale overrides the configured fallback for reads.
	// FallbackNone disables fallback.
	FallbackLocale string

	// Draft reads and writes draft snapshots of collections with drafts
	// enabled. It is ignored elsewhere.
	Draft bool

	// Tx is a transaction lent by the caller, from Begin.
	Tx Tx
}

// Operations is the backend-independent CRUD surface.
type Operations interface {
	Backend() string
	Config() *schema.Config
	Begin(ctx context.Context) (Tx, error)
	Migrate(ctx context.Context) error

	Find(ctx context.Context, slug string, q Query, op Op) (*PaginatedDocs, error)
	FindOne(ctx context.Context, slug string, w where.Expr, op Op) (document.Document, bool, error)
	FindByID(ctx context.Context, slug, id string, op Op) (document.Document, bool, error)
	Count(ctx context.Context, slug string, w where.Expr, op Op) (int, error)

	Create(ctx context.Context, slug string, data map[string]any, op Op) (document.Document, error)
	UpdateOne(ctx context.Context, slug string, target Target, data map[string]any, op Op) (document.Document, bool, error)
	DeleteOne(ctx context.Context, slug string, target Target, op Op) (document.Document, bool, error)
	DeleteMany(ctx context.Context, slug string, w where.Expr, op Op) (int, error)

	FindGlobal(ctx context.Context, slug string, op Op) (document.Document, bool, error)
	UpdateGlobal(ctx context.Context, slug string, data map[string]any, op Op) (document.Document, error)

	FindVersions(ctx context.Context, slug string, q Query, op Op) (*PaginatedDocs, error)
	FindVersionByID(ctx context.Context, slug, id string, op Op) (document.Document, bool, error)
	PublishVersion(ctx context.Context, slug, versionID string, op Op) (document.Document, bool, error)

	Dispatch(ctx context.Context, req Request) Response
}

// Adapter implements Operations over one backend.
type Adapter[P, R any] struct {
	backend      Backend[P, R]
	cfg          *schema.Config
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	defaultLimit int
}

var _ Operations = (*Adapter[any, any])(nil)

type options struct {
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	defaultLimit int
}

// Option configures an Adapter.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the source of createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator sets the generator of document, element and version ids.
// Default: UUIDv7.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// WithDefaultLimit sets the page size used when a query has no limit.
func WithDefaultLimit(n int) Option {
	return func(o *options) { o.defaultLimit = n }
}

// New creates an Adapter for cfg over backend.
func New[P, R any](backend Backend[P, R], cfg *schema.Config, opts ...Option) *Adapter[P, R] {
	o := options{
		logger:       slog.Default(),
		now:          time.Now,
		newID:        func() string { return uuid.Must(uuid.NewV7()).String() },
		defaultLimit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Adapter[P, R]{
		backend:      backend,
		cfg:          cfg,
		logger:       o.logger,
		now:          o.now,
		newID:        o.newID,
		defaultLimit: o.defaultLimit,
	}
}

// Backend returns the backend name.
func (a *Adapter[P, R]) Backend() string { return a.backend.Name() }

// Config returns the schema.
func (a *Adapter[P, R]) Config() *schema.Config { return a.cfg }

// Begin starts a transaction for the caller to lend to several operations
// through Op.Tx. The caller commits or rolls it back.
func (a *Adapter[P, R]) Begin(ctx context.Context) (Tx, error) {
	return a.backend.Begin(ctx)
}

// Migrate prepares the backend storage for the schema.
func (a *Adapter[P, R]) Migrate(ctx context.Context) error {
	start := time.Now()
	if err := a.backend.Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("storage migrated", "backend", a.backend.Name(), "duration", time.Since(start))
	return nil
}

// run executes fn inside op.Tx or a transaction of its own. An owned
// transaction is committed on success and rolled back on error or
// cancellation.
func (a *Adapter[P, R]) run(ctx context.Context, name string, coll *schema.Collection, op Op, fn func(tx Tx) error) error {
	start := time.Now()
	err := a.runTx(ctx, name, coll, op, fn)
	if err != nil {
		err = dberr.WithCollection(err, coll.Slug)
		a.logger.Debug("operation failed",
			"op", name,
			"collection", coll.Slug,
			"backend", a.backend.Name(),
			"code", dberr.CodeOf(err),
			"error", err,
		)
		return err
	}
	a.logger.Debug("operation complete",
		"op", name,
		"collection", coll.Slug,
		"backend", a.backend.Name(),
		"duration", time.Since(start),
	)
	return nil
}

func (a *Adapter[P, R]) runTx(ctx context.Context, name string, coll *schema.Collection, op Op, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if op.Tx != nil {
		return fn(op.Tx)
	}

	tx, err := a.backend.Begin(ctx)
	if err != nil {
		return err
	}
	err = fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			a.logger.Warn("rollback failed", "op", name, "collection", coll.Slug, "error", rerr)
		} else {
			a.logger.Warn("transaction rolled back", "op", name, "collection", coll.Slug, "error", err)
		}
		return err
	}
	return tx.Commit()
}

// collection looks up a collection by slug.
func (a *Adapter[P, R]) collection(slug string) (*schema.Collection, error) {
	coll, ok := a.cfg.Collection(slug)
	if !ok || coll.VersionsOf != nil {
		return nil, dberr.UnknownCollection(slug)
	}
	return coll, nil
}

// documents looks up a collection that is not a global.
func (a *Adapter[P, R]) documents(slug string) (*schema.Collection, error) {
	coll, err := a.collection(slug)
	if err != nil {
		return nil, err
	}
	if coll.Global {
		return nil, &dberr.Error{Code: dberr.CodeUnknownCollection, Collection: slug, Message: "is a global, not a collection"}
	}
	return coll, nil
}

func (a *Adapter[P, R]) global(slug string) (*schema.Collection, error) {
	coll, err := a.collection(slug)
	if err != nil {
		return nil, err
	}
	if !coll.Global {
		return nil, &dberr.Error{Code: dberr.CodeUnknownCollection, Collection: slug, Message: "is not a global"}
	}
	return coll, nil
}

func (a *Adapter[P, R]) versions(coll *schema.Collection) (*schema.Collection, error) {
	if !coll.Versioned() {
		return nil, &dberr.Error{Code: dberr.CodeUnknownCollection, Collection: coll.Slug, Message: "versions are not enabled"}
	}
	vcoll, ok := a.cfg.Collection(coll.VersionsSlug())
	if !ok {
		return nil, dberr.UnknownCollection(coll.VersionsSlug())
	}
	return vcoll, nil
}

// locales resolves the request locale and the read fallback.
func (a *Adapter[P, R]) locales(op Op) (locale, fallback string, err error) {
	if !a.cfg.Localized() {
		return "", "", nil
	}
	loc := a.cfg.Localization

	locale = op.Locale
	if locale == "" {
		locale = loc.DefaultLocale
	}
	if locale != schema.AllLocales && !loc.Has(locale) {
		return "", "", dberr.InvalidValue("locale", "unknown locale %q", locale)
	}

	switch {
	case op.FallbackLocale == FallbackNone:
	case op.FallbackLocale != "":
		if !loc.Has(op.FallbackLocale) {
			return "", "", dberr.InvalidValue("fallbackLocale", "unknown locale %q", op.FallbackLocale)
		}
		fallback = op.FallbackLocale
	case loc.Fallback:
		fallback = loc.DefaultLocale
	}
	return locale, fallback, nil
}

func (a *Adapter[P, R]) timestamp() string {
	return document.FormatTime(a.now())
}
