// Package docstore implements the document backend: documents are stored
// whole, in their logical shape, in a MongoDB-style document database.
//
// The store compiles filters with querydoc and runs them against a
// Database. Two databases are provided: Mongo for a MongoDB server and
// Memory, an embedded database evaluating the same query documents.
package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/querydoc"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// Store is the document backend.
type Store struct {
	db       Database
	cfg      *schema.Config
	compiler *querydoc.Compiler
}

var _ adapter.Backend[bson.D, bson.D] = (*Store)(nil)

// New creates a Store over db for the collections of cfg.
func New(db Database, cfg *schema.Config) *Store {
	return &Store{db: db, cfg: cfg, compiler: querydoc.NewCompiler(cfg)}
}

// Name identifies the backend.
func (s *Store) Name() string { return "doc/" + s.db.Name() }

// Database returns the underlying database.
func (s *Store) Database() Database { return s.db }

// Close closes the database.
func (s *Store) Close(ctx context.Context) error { return s.db.Close(ctx) }

type txn struct {
	// ctx outlives the caller's cancellation so a session can always be
	// committed or aborted.
	ctx  context.Context
	sess Session
}

func (t *txn) Commit() error   { return classify(t.sess.Commit(t.ctx), true) }
func (t *txn) Rollback() error { return t.sess.Abort(t.ctx) }

// Begin starts a session.
func (s *Store) Begin(ctx context.Context) (adapter.Tx, error) {
	sess, err := s.db.StartSession(ctx)
	if err != nil {
		return nil, classify(err, false)
	}
	return &txn{ctx: context.WithoutCancel(ctx), sess: sess}, nil
}

func bind(ctx context.Context, tx adapter.Tx) context.Context {
	if t, ok := tx.(*txn); ok {
		return t.sess.Context(ctx)
	}
	return ctx
}

// CompileWhere compiles w into a query document. Relationship traversals
// are resolved to id lists by querying the target collection inside tx.
func (s *Store) CompileWhere(ctx context.Context, tx adapter.Tx, coll *schema.Collection, w where.Expr, locale string) (bson.D, error) {
	return s.compiler.Filter(ctx, coll, w, locale, s.resolver(tx))
}

func (s *Store) resolver(tx adapter.Tx) querydoc.Resolver {
	var resolve querydoc.Resolver
	resolve = func(ctx context.Context, target *schema.Collection, cond where.Expr, locale string) ([]string, error) {
		filter, err := s.compiler.Filter(ctx, target, cond, locale, resolve)
		if err != nil {
			return nil, err
		}
		return s.ids(ctx, tx, target, filter)
	}
	return resolve
}

// SelectIDs returns the ids of the matching documents.
func (s *Store) SelectIDs(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred bson.D) ([]string, error) {
	return s.ids(ctx, tx, coll, pred)
}

func (s *Store) ids(ctx context.Context, tx adapter.Tx, coll *schema.Collection, filter bson.D) ([]string, error) {
	docs, err := s.db.Collection(coll.Slug).Find(bind(ctx, tx), filter, FindOptions{IDsOnly: true})
	if err != nil {
		return nil, classify(err, false)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if id, ok := lookup(d, querydoc.IDKey); ok {
			if sid, ok := id.(string); ok {
				ids = append(ids, sid)
			}
		}
	}
	return ids, nil
}

// Select returns the matching documents in page order.
func (s *Store) Select(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred bson.D, page adapter.Page) ([]bson.D, error) {
	sort, err := s.compiler.Sort(coll, page.Sort, page.Locale)
	if err != nil {
		return nil, err
	}
	docs, err := s.db.Collection(coll.Slug).Find(bind(ctx, tx), pred, FindOptions{
		Sort:  sort,
		Limit: int64(page.Limit),
		Skip:  int64(page.Offset),
	})
	return docs, classify(err, false)
}

// Count returns the number of matching documents.
func (s *Store) Count(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred bson.D) (int, error) {
	n, err := s.db.Collection(coll.Slug).Count(bind(ctx, tx), pred)
	return int(n), classify(err, false)
}

// Insert stores a new document. Nulls and empty structures are not
// materialized.
func (s *Store) Insert(ctx context.Context, tx adapter.Tx, coll *schema.Collection, raw bson.D) error {
	doc := compact(coll.Fields, raw)
	return classify(s.db.Collection(coll.Slug).InsertOne(bind(ctx, tx), doc), true)
}

// Patch applies the supplied fields of raw to one document. Nulls unset
// their path; groups and locale maps are merged key by key.
func (s *Store) Patch(ctx context.Context, tx adapter.Tx, coll *schema.Collection, id string, raw bson.D) (bool, error) {
	set, unset := updateOps(coll.Fields, raw, "")
	ok, err := s.db.Collection(coll.Slug).UpdateByID(bind(ctx, tx), id, set, unset)
	return ok, classify(err, true)
}

// Delete removes the matching documents.
func (s *Store) Delete(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred bson.D) (int, error) {
	n, err := s.db.Collection(coll.Slug).DeleteMany(bind(ctx, tx), pred)
	return int(n), classify(err, true)
}

// Migrate creates the declared indexes of every collection, concurrently.
func (s *Store) Migrate(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, coll := range s.cfg.All() {
		indexes := Indexes(s.cfg, coll)
		g.Go(func() error {
			return classify(s.db.EnsureIndexes(gctx, coll.Slug, indexes), false)
		})
	}
	return g.Wait()
}

// Indexes lists the indexes declared by the top-level and group fields of
// coll. Localized fields get one index per locale.
func Indexes(cfg *schema.Config, coll *schema.Collection) []Index {
	var out []Index
	var walk func(fields []*schema.Field, prefix string)
	walk = func(fields []*schema.Field, prefix string) {
		for _, f := range fields {
			path := join(prefix, f.Name)
			if f.Kind == schema.KindGroup {
				walk(f.Fields, path)
				continue
			}
			if !f.Unique && !f.Index {
				continue
			}
			key := path
			if f.Kind == schema.KindRelationship && f.Polymorphic() {
				key += ".value"
			}
			switch {
			case f.Unique:
				out = append(out, Index{Name: uniquePrefix + path, Key: key, Unique: true})
			case f.Localized:
				for _, loc := range cfg.Locales() {
					out = append(out, Index{Name: indexPrefix + path + "." + loc, Key: key + "." + loc})
				}
			default:
				out = append(out, Index{Name: indexPrefix + path, Key: key})
			}
		}
	}
	walk(coll.Fields, "")
	return out
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
