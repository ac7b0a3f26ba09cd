package adapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

func latestVersions(t *testing.T, b testBackend, slug, parent string) []document.Document {
	t.Helper()
	res, err := b.ops.FindVersions(context.Background(), slug, adapter.Query{
		Where: where.All(where.Eq(schema.FieldParent, parent), where.Eq(schema.FieldLatest, true)),
	}, adapter.Op{})
	require.NoError(t, err)
	return res.Docs
}

func TestDrafts_SaveAndRead(t *testing.T) {
	eachBackend(t, func(t *testing.T, b testBackend) {
		ctx := context.Background()
		create(t, b, "posts", map[string]any{"id": "p1", "title": "v1", "views": 1})

		draft, found, err := b.ops.UpdateOne(ctx, "posts", adapter.Target{ID: "p1"},
			map[string]any{"title": "v2"}, adapter.Op{Draft: true})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v2", draft["title"])
		assert.Equal(t, float64(1), draft["views"])
		assert.Equal(t, schema.StatusDraft, draft[schema.FieldStatus])

		published, _ := findByID(t, b, "posts", "p1", adapter.Op{})
		assert.Equal(t, "v1", published["title"])
		assert.Equal(t, schema.StatusPublished, published[schema.FieldStatus])

		got, found := findByID(t, b, "posts", "p1", adapter.Op{Draft: true})
		require.True(t, found)
		assert.Equal(t, draft, got)

		res, err := b.ops.Find(ctx, "posts", adapter.Query{Where: where.Eq("title", "v2")}, adapter.Op{Draft: true})
		require.NoError(t, err)
		require.Len(t, res.Docs, 1)
		assert.Equal(t, "p1", res.Docs[0][schema.FieldID])

		res, err = b.ops.Find(ctx, "posts", adapter.Query{Where: where.Eq("title", "v2")}, adapter.Op{})
		require.NoError(t, err)
		assert.Empty(t, res.Docs)

		latest := latestVersions(t, b, "posts", "p1")
		require.Len(t, latest, 1)
		assert.Equal(t, "v2", latest[0][schema.FieldVersion].(map[string]any)["title"])
	})
}

func TestDrafts_Create(t *testing.T) {
	eachBackend(t, func(t *testing.T, b testBackend) {
		ctx := context.Background()
		doc, err := b.ops.Create(ctx, "posts", map[string]any{"id": "p1"}, adapter.Op{Draft: true})
		require.NoError(t, err)
		assert.Equal(t, schema.StatusDraft, doc[schema.FieldStatus])

		// Drafts are ignored on collections without them.
		_, err = b.ops.Create(ctx, "users", map[string]any{}, adapter.Op{Draft: true})
		assert.True(t, dberr.IsValidation(err))
	})
}

func TestPublishVersion(t *testing.T) {
	eachBackend(t, func(t *testing.T, b testBackend) {
		ctx := context.Background()
		create(t, b, "posts", fullPost())
		_, _, err := b.ops.UpdateOne(ctx, "posts", adapter.Target{ID: "p1"}, map[string]any{
			"title": "Draft title",
			"items": []any{map[string]any{"id": "i9", "label": "z"}},
			"meta":  nil,
		}, adapter.Op{Draft: true})
		require.NoError(t, err)

		latest := latestVersions(t, b, "posts", "p1")
		require.Len(t, latest, 1)

		doc, found, err := b.ops.PublishVersion(ctx, "posts", document.ID(latest[0]), adapter.Op{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Draft title", doc["title"])
		assert.Equal(t, schema.StatusPublished, doc[schema.FieldStatus])
		assert.Equal(t, []any{map[string]any{"id": "i9", "label": "z"}}, doc["items"])
		assert.NotContains(t, doc, "meta")

		canonical, _ := findByID(t, b, "posts", "p1", adapter.Op{})
		assert.Equal(t, doc, canonical)

		snapshot, _ := findByID(t, b, "posts", "p1", adapter.Op{Draft: true})
		assert.Equal(t, canonical, snapshot)
		assert.Len(t, latestVersions(t, b, "posts", "p1"), 1)

		all, err := b.ops.FindVersions(ctx, "posts", adapter.Query{Where: where.Eq(schema.FieldParent, "p1")}, adapter.Op{})
		require.NoError(t, err)
		assert.Equal(t, 3, all.TotalDocs)
	})
}

func TestPublishVersion_Missing(t *testing.T) {
	eachBackend(t, func(t *testing.T, b testBackend) {
		ctx := context.Background()
		create(t, b, "pages", map[string]any{"id": "pg1", "title": "Home"})
		latest := latestVersions(t, b, "pages", "pg1")
		require.Len(t, latest, 1)
		versionID := document.ID(latest[0])

		_, _, err := b.ops.DeleteOne(ctx, "pages", adapter.Target{ID: "pg1"}, adapter.Op{})
		require.NoError(t, err)

		_, found, err := b.ops.PublishVersion(ctx, "pages", versionID, adapter.Op{})
		require.NoError(t, err)
		assert.False(t, found, "versions are deleted with their document")

		_, found, err = b.ops.PublishVersion(ctx, "pages", "missing", adapter.Op{})
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestVersions_MaxPerDoc(t *testing.T) {
	eachBackend(t, func(t *testing.T, b testBackend) {
		ctx := context.Background()
		create(t, b, "pages", map[string]any{"id": "pg1", "title": "t0"})
		for _, title := range []string{"t1", "t2", "t3"} {
			_, _, err := b.ops.UpdateOne(ctx, "pages", adapter.Target{ID: "pg1"}, map[string]any{"title": title}, adapter.Op{})
			require.NoError(t, err)
		}

		res, err := b.ops.FindVersions(ctx, "pages", adapter.Query{
			Where: where.Eq(schema.FieldParent, "pg1"),
			Sort:  where.ParseSort("-createdAt"),
		}, adapter.Op{})
		require.NoError(t, err)
		require.Len(t, res.Docs, 2)
		assert.Equal(t, "t3", res.Docs[0][schema.FieldVersion].(map[string]any)["title"])
		assert.Equal(t, true, res.Docs[0][schema.FieldLatest])
		assert.Equal(t, "t2", res.Docs[1][schema.FieldVersion].(map[string]any)["title"])
		assert.Equal(t, false, res.Docs[1][schema.FieldLatest])

		doc, found, err := b.ops.FindVersionByID(ctx, "pages", document.ID(res.Docs[1]), adapter.Op{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "pg1", doc[schema.FieldParent])
	})
}

func TestVersions_NotEnabled(t *testing.T) {
	eachBackend(t, func(t *testing.T, b testBackend) {
		_, err := b.ops.FindVersions(context.Background(), "users", adapter.Query{}, adapter.Op{})
		assert.Equal(t, dberr.CodeUnknownCollection, dberr.CodeOf(err))

		_, err = b.ops.Find(context.Background(), "_posts_versions", adapter.Query{}, adapter.Op{})
		assert.Equal(t, dberr.CodeUnknownCollection, dberr.CodeOf(err))
	})
}
