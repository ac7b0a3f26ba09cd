package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/dberr"
)

func postFields() []*Field {
	return []*Field{
		{Name: "title", Kind: KindText, Localized: true},
		{Name: "meta", Kind: KindGroup, Fields: []*Field{
			{Name: "description", Kind: KindText},
		}},
		{Name: "items", Kind: KindArray, Fields: []*Field{
			{Name: "label", Kind: KindText},
			{Name: "tags", Kind: KindArray, Fields: []*Field{
				{Name: "name", Kind: KindText},
			}},
		}},
		{Name: "layout", Kind: KindBlocks, Blocks: []*Block{
			{Slug: "cta", Fields: []*Field{
				{Name: "heading", Kind: KindText},
				{Name: "count", Kind: KindNumber},
			}},
			{Slug: "quote", Fields: []*Field{
				{Name: "heading", Kind: KindText},
				{Name: "author", Kind: KindText},
			}},
		}},
		{Name: "author", Kind: KindRelationship, RelationTo: []string{"users"}},
	}
}

func TestResolvePath(t *testing.T) {
	fields := postFields()

	tests := []struct {
		name     string
		path     string
		want     []string // String() of each alternative
		leafKind Kind
	}{
		{"scalar", "title", []string{"title"}, KindText},
		{"group child", "meta.description", []string{"meta.description"}, KindText},
		{"array element", "items.label", []string{"items.label"}, KindText},
		{"nested array", "items.tags.name", []string{"items.tags.name"}, KindText},
		{"array element id", "items.id", []string{"items.id"}, KindText},
		{"root id", "id", []string{"id"}, KindText},
		{"relationship", "author", []string{"author"}, KindRelationship},
		{"through relationship", "author.profile.name", []string{"author.profile.name"}, KindRelationship},
		{"single block variant", "layout.count", []string{"layout.count"}, KindNumber},
		{"block discriminator", "layout.blockType", []string{"layout.blockType", "layout.blockType"}, KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := ResolvePath(fields, tt.path)
			require.NoError(t, err)
			require.Len(t, paths, len(tt.want))
			for i, p := range paths {
				assert.Equal(t, tt.want[i], p.String())
				assert.Equal(t, tt.leafKind, p.Leaf().Kind)
			}
		})
	}
}

func TestResolvePath_AmbiguousBlockVariants(t *testing.T) {
	paths, err := ResolvePath(postFields(), "layout.heading")
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, "cta", paths[0].Steps[0].Block.Slug)
	assert.Equal(t, "quote", paths[1].Steps[0].Block.Slug)

	// Only one variant declares author.
	paths, err = ResolvePath(postFields(), "layout.author")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "quote", paths[0].Steps[0].Block.Slug)
}

func TestResolvePath_RelationshipRest(t *testing.T) {
	paths, err := ResolvePath(postFields(), "author.profile.name")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "profile.name", paths[0].Rest)
	assert.Len(t, paths[0].Steps, 1)
}

func TestResolvePath_Unknown(t *testing.T) {
	for _, path := range []string{
		"",
		"missing",
		"title.en",
		"meta.missing",
		"meta.id",
		"items.missing",
		"layout.missing",
		"items..label",
		"blockType",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := ResolvePath(postFields(), path)
			require.Error(t, err)
			assert.Equal(t, dberr.CodeUnknownField, dberr.CodeOf(err))
			assert.Equal(t, path, dberr.FieldOf(err))
		})
	}
}

func TestPath_CrossesCollection(t *testing.T) {
	paths, err := ResolvePath(postFields(), "items.label")
	require.NoError(t, err)
	assert.True(t, paths[0].CrossesCollection())

	paths, err = ResolvePath(postFields(), "meta.description")
	require.NoError(t, err)
	assert.False(t, paths[0].CrossesCollection())
}
