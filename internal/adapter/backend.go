package adapter

import (
	"context"

	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// Tx is a backend transaction handle. Operations borrow it for their
// duration and never retain it.
type Tx interface {
	Commit() error
	Rollback() error
}

// Page selects a window of a result set.
type Page struct {
	Sort []where.SortKey

	// Limit 0 means no limit.
	Limit  int
	Offset int

	// Locale orders localized sort keys; schema.AllLocales sorts by the
	// default locale.
	Locale string
}

// QueryCompiler turns a Where expression into the backend's native
// predicate P. The transaction is available for backends that resolve
// relationship traversals with sub-queries of their own.
type QueryCompiler[P any] interface {
	CompileWhere(ctx context.Context, tx Tx, coll *schema.Collection, w where.Expr, locale string) (P, error)
}

// RowAssembler converts between logical documents in all-locales form and
// the backend's storage representation R.
type RowAssembler[R any] interface {
	// Disassemble maps a complete document or a partial update to storage.
	// Fields absent from doc are left untouched by Patch.
	Disassemble(coll *schema.Collection, doc document.Document) (R, error)

	// Assemble maps stored data back to a document in all-locales form.
	Assemble(coll *schema.Collection, raw R) (document.Document, error)
}

// CrudExecutor runs statements against the backend.
//
// Every method except Begin and Migrate runs inside tx. Errors are already
// classified into the dberr taxonomy.
type CrudExecutor[P, R any] interface {
	Begin(ctx context.Context) (Tx, error)
	Select(ctx context.Context, tx Tx, coll *schema.Collection, pred P, page Page) ([]R, error)

	// SelectIDs returns the ids of every match, in no particular order,
	// without loading the documents.
	SelectIDs(ctx context.Context, tx Tx, coll *schema.Collection, pred P) ([]string, error)
	Count(ctx context.Context, tx Tx, coll *schema.Collection, pred P) (int, error)
	Insert(ctx context.Context, tx Tx, coll *schema.Collection, raw R) error

	// Patch applies raw to the document with the given id and reports
	// whether it existed.
	Patch(ctx context.Context, tx Tx, coll *schema.Collection, id string, raw R) (bool, error)
	Delete(ctx context.Context, tx Tx, coll *schema.Collection, pred P) (int, error)

	// Migrate prepares storage for every collection of the schema.
	Migrate(ctx context.Context) error
}

// Backend is the complete capability set a storage backend implements.
// The adapter is written once against it.
type Backend[P, R any] interface {
	Name() string
	QueryCompiler[P]
	RowAssembler[R]
	CrudExecutor[P, R]
}
