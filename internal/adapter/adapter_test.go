package adapter_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/docstore"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqlstore"
	"github.com/roach88/folio/internal/testutil"
)

// testConfig builds a fresh schema; NewConfig takes ownership of the
// collections it is given.
func testConfig(t *testing.T) *schema.Config {
	t.Helper()
	text := func(name string) *schema.Field { return &schema.Field{Name: name, Kind: schema.KindText} }

	cfg, err := schema.NewConfig(
		&schema.Localization{Locales: []string{"en", "fr"}, DefaultLocale: "en"},
		[]*schema.Collection{
			{Slug: "users", Timestamps: true, Fields: []*schema.Field{
				{Name: "name", Kind: schema.KindText, Required: true},
			}},
			{Slug: "posts", Timestamps: true, Versions: &schema.Versions{Drafts: true}, Fields: []*schema.Field{
				{Name: "title", Kind: schema.KindText, Localized: true},
				{Name: "slug", Kind: schema.KindText, Unique: true},
				{Name: "views", Kind: schema.KindNumber},
				{Name: "meta", Kind: schema.KindGroup, Fields: []*schema.Field{text("description")}},
				{Name: "author", Kind: schema.KindRelationship, RelationTo: []string{"users"}},
				{Name: "items", Kind: schema.KindArray, Fields: []*schema.Field{
					text("label"),
					{Name: "caption", Kind: schema.KindText, Localized: true},
				}},
				{Name: "layout", Kind: schema.KindBlocks, Blocks: []*schema.Block{
					{Slug: "cta", Fields: []*schema.Field{text("heading")}},
					{Slug: "quote", Fields: []*schema.Field{text("text")}},
				}},
			}},
			{Slug: "pages", Timestamps: true, Versions: &schema.Versions{MaxPerDoc: 2}, Fields: []*schema.Field{
				text("title"),
			}},
		},
		[]*schema.Collection{
			{Slug: "settings", Timestamps: true, Fields: []*schema.Field{
				{Name: "siteName", Kind: schema.KindText, Localized: true},
				text("footer"),
			}},
		})
	require.NoError(t, err)
	return cfg
}

type testBackend struct {
	name string
	ops  adapter.Operations

	// sqlite is set for the relational backend.
	sqlite *sqlstore.Store
}

func options() []adapter.Option {
	return []adapter.Option{
		adapter.WithLogger(slog.New(slog.DiscardHandler)),
		adapter.WithClock(testutil.NewClock().Now),
		adapter.WithIDGenerator(testutil.NewSequenceIDs("id").Next),
	}
}

func newSQLite(t *testing.T) testBackend {
	t.Helper()
	cfg := testConfig(t)
	s, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "folio.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	a := adapter.New(s, cfg, options()...)
	require.NoError(t, a.Migrate(context.Background()))
	return testBackend{name: "sqlite", ops: a, sqlite: s}
}

func newMemory(t *testing.T) testBackend {
	t.Helper()
	cfg := testConfig(t)
	s := docstore.New(docstore.NewMemory(), cfg)
	a := adapter.New(s, cfg, options()...)
	require.NoError(t, a.Migrate(context.Background()))
	return testBackend{name: "memory", ops: a}
}

// eachBackend runs fn against a fresh instance of every backend.
func eachBackend(t *testing.T, fn func(t *testing.T, b testBackend)) {
	t.Helper()
	for _, open := range []func(*testing.T) testBackend{newSQLite, newMemory} {
		b := open(t)
		t.Run(b.name, func(t *testing.T) {
			fn(t, b)
		})
	}
}

func create(t *testing.T, b testBackend, slug string, data map[string]any) document.Document {
	t.Helper()
	doc, err := b.ops.Create(context.Background(), slug, data, adapter.Op{})
	require.NoError(t, err)
	return doc
}

func findByID(t *testing.T, b testBackend, slug, id string, op adapter.Op) (document.Document, bool) {
	t.Helper()
	doc, found, err := b.ops.FindByID(context.Background(), slug, id, op)
	require.NoError(t, err)
	return doc, found
}

func ptr[T any](v T) *T { return &v }

// fullPost returns write data for a post touching every field kind.
func fullPost() map[string]any {
	return map[string]any{
		"id":     "p1",
		"title":  "Hello",
		"slug":   "hello",
		"views":  float64(3),
		"meta":   map[string]any{"description": "intro"},
		"author": "u1",
		"items": []any{
			map[string]any{"id": "i1", "label": "a", "caption": "A"},
			map[string]any{"id": "i2", "label": "b", "caption": "B"},
			map[string]any{"id": "i3", "label": "c", "caption": "C"},
		},
		"layout": []any{
			map[string]any{"id": "b1", "blockType": "quote", "text": "q"},
			map[string]any{"id": "b2", "blockType": "cta", "heading": "h"},
		},
	}
}

// userFields strips the fields the adapter generates.
func userFields(doc document.Document) document.Document {
	out := document.CloneDoc(doc)
	for _, k := range []string{schema.FieldID, schema.FieldCreatedAt, schema.FieldUpdatedAt, schema.FieldStatus} {
		delete(out, k)
	}
	return out
}
