package sqllayout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/schema"
)

func postsCollection() *schema.Collection {
	return &schema.Collection{
		Slug: "blog-posts",
		Fields: []*schema.Field{
			{Name: "title", Kind: schema.KindText, Localized: true},
			{Name: "slug", Kind: schema.KindText, Unique: true},
			{Name: "views", Kind: schema.KindNumber},
			{Name: "featured", Kind: schema.KindCheckbox},
			{Name: "meta", Kind: schema.KindGroup, Fields: []*schema.Field{
				{Name: "publishedAt", Kind: schema.KindDate},
			}},
			{Name: "items", Kind: schema.KindArray, Fields: []*schema.Field{
				{Name: "label", Kind: schema.KindText},
				{Name: "caption", Kind: schema.KindText, Localized: true},
			}},
			{Name: "layout", Kind: schema.KindBlocks, Blocks: []*schema.Block{
				{Slug: "cta", Fields: []*schema.Field{{Name: "heading", Kind: schema.KindText}}},
				{Slug: "quote", Fields: []*schema.Field{{Name: "text", Kind: schema.KindText}}},
			}},
			{Name: "author", Kind: schema.KindRelationship, RelationTo: []string{"users"}},
			{Name: "related", Kind: schema.KindRelationship, RelationTo: []string{"users", "pages"}},
			{Name: "location", Kind: schema.KindPoint},
		},
	}
}

func columnNames(cols []*Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestBuild(t *testing.T) {
	coll := postsCollection()
	l, err := Build(coll)
	require.NoError(t, err)

	root := l.Root
	assert.Equal(t, "blog_posts", root.Name)
	assert.True(t, root.IsRoot())
	assert.Equal(t, []string{
		"slug", "views", "featured", "meta_published_at",
		"author_id", "related_relation_to", "related_id", "location_lng", "location_lat",
	}, columnNames(root.Plain()))
	assert.Equal(t, []string{"title"}, columnNames(root.Localized()))
	assert.Equal(t, "blog_posts_locales", root.LocalesName())

	var names []string
	for _, tbl := range l.Tables() {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{
		"blog_posts", "blog_posts_items", "blog_posts_layout_cta", "blog_posts_layout_quote",
	}, names)

	items := root.Child(coll.Field("items"), nil)
	require.NotNil(t, items)
	assert.Same(t, root, items.Parent)
	assert.True(t, items.HasLocales())
	assert.Equal(t, []string{"label"}, columnNames(items.Plain()))

	layout := coll.Field("layout")
	assert.Len(t, root.ChildrenFor(layout), 2)
	quote := root.Child(layout, layout.Blocks[1])
	require.NotNil(t, quote)
	assert.Equal(t, "blog_posts_layout_quote", quote.Name)
	assert.False(t, quote.HasLocales())

	related := coll.Field("related")
	assert.Equal(t, "related_relation_to", root.Column(related, PartRelationTo).Name)
	assert.Equal(t, "related_id", root.Column(related, PartValue).Name)
	assert.Nil(t, root.Column(coll.Field("author"), PartRelationTo))

	publishedAt := coll.Field("meta").Fields[0]
	col := root.Column(publishedAt, PartValue)
	require.NotNil(t, col)
	assert.Equal(t, "meta.publishedAt", col.LogicalPath())
}

func TestBuild_UniqueMapping(t *testing.T) {
	l, err := Build(postsCollection())
	require.NoError(t, err)

	assert.Equal(t, "blog_posts_slug_key", UniqueIndexName("blog_posts", "slug"))

	field, ok := l.FieldForIndex("blog_posts_slug_key")
	assert.True(t, ok)
	assert.Equal(t, "slug", field)

	field, ok = l.FieldForColumn("blog_posts", "meta_published_at")
	assert.True(t, ok)
	assert.Equal(t, "meta.publishedAt", field)

	_, ok = l.FieldForIndex("blog_posts_views_key")
	assert.False(t, ok)
}

func TestBuild_Collisions(t *testing.T) {
	tests := []struct {
		name   string
		fields []*schema.Field
	}{
		{"group flattening", []*schema.Field{
			{Name: "meta", Kind: schema.KindGroup, Fields: []*schema.Field{{Name: "title", Kind: schema.KindText}}},
			{Name: "meta_title", Kind: schema.KindText},
		}},
		{"relationship column", []*schema.Field{
			{Name: "author", Kind: schema.KindRelationship, RelationTo: []string{"users"}},
			{Name: "author_id", Kind: schema.KindText},
		}},
		{"locale table", []*schema.Field{
			{Name: "title", Kind: schema.KindText, Localized: true},
			{Name: "locales", Kind: schema.KindArray, Fields: []*schema.Field{{Name: "a", Kind: schema.KindText}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&schema.Collection{Slug: "posts", Fields: tt.fields})
			assert.Error(t, err)
		})
	}
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "meta_published_at", ColumnName([]string{"meta", "publishedAt"}))
	assert.Equal(t, "_status", ColumnName([]string{"_status"}))
	assert.Equal(t, "html_url", ColumnName([]string{"htmlURL"}))
	assert.Equal(t, "version_created_at", ColumnName([]string{"version", "createdAt"}))
}
