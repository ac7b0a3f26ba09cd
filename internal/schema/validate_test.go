package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(problems []Problem) []string {
	out := make([]string, len(problems))
	for i, p := range problems {
		out[i] = p.Code
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	cfg := &Config{
		Localization: &Localization{Locales: []string{"en", "fr"}, DefaultLocale: "en"},
		Collections: []*Collection{
			{Slug: "users", Fields: []*Field{{Name: "name", Kind: KindText, Unique: true}}},
			{Slug: "posts", Fields: postFields()},
		},
	}
	assert.Empty(t, Validate(cfg))
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		code string
		path string
	}{
		{
			name: "duplicate sibling",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "title", Kind: KindText},
				{Name: "title", Kind: KindNumber},
			}}}},
			code: ProblemDuplicateName,
			path: "collections.posts.title",
		},
		{
			name: "duplicate inside array",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "items", Kind: KindArray, Fields: []*Field{
					{Name: "a", Kind: KindText},
					{Name: "a", Kind: KindText},
				}},
			}}}},
			code: ProblemDuplicateName,
			path: "collections.posts.items.a",
		},
		{
			name: "unknown relation target",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "author", Kind: KindRelationship, RelationTo: []string{"users"}},
			}}}},
			code: ProblemUnknownRelation,
			path: "collections.posts.author",
		},
		{
			name: "blocks without variants",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "layout", Kind: KindBlocks},
			}}}},
			code: ProblemUndefinedBlock,
			path: "collections.posts.layout",
		},
		{
			name: "nil block variant",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "layout", Kind: KindBlocks, Blocks: []*Block{nil}},
			}}}},
			code: ProblemUndefinedBlock,
			path: "collections.posts.layout",
		},
		{
			name: "localized without localization",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "title", Kind: KindText, Localized: true},
			}}}},
			code: ProblemInvalidLocalized,
			path: "collections.posts.title",
		},
		{
			name: "localized array",
			cfg: &Config{
				Localization: &Localization{Locales: []string{"en"}, DefaultLocale: "en"},
				Collections: []*Collection{{Slug: "posts", Fields: []*Field{
					{Name: "items", Kind: KindArray, Localized: true, Fields: []*Field{{Name: "a", Kind: KindText}}},
				}}},
			},
			code: ProblemInvalidLocalized,
			path: "collections.posts.items",
		},
		{
			name: "nested unique",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "meta", Kind: KindGroup, Fields: []*Field{{Name: "slug", Kind: KindText, Unique: true}}},
			}}}},
			code: ProblemInvalidUnique,
			path: "collections.posts.meta.slug",
		},
		{
			name: "reserved id",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "id", Kind: KindText},
			}}}},
			code: ProblemReservedName,
			path: "collections.posts.id",
		},
		{
			name: "reserved underscore",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "_order", Kind: KindNumber},
			}}}},
			code: ProblemReservedName,
			path: "collections.posts._order",
		},
		{
			name: "select without options",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "state", Kind: KindSelect},
			}}}},
			code: ProblemMissingOptions,
			path: "collections.posts.state",
		},
		{
			name: "unknown kind",
			cfg: &Config{Collections: []*Collection{{Slug: "posts", Fields: []*Field{
				{Name: "body", Kind: Kind("richText")},
			}}}},
			code: ProblemInvalidKind,
			path: "collections.posts.body",
		},
		{
			name: "invalid locale",
			cfg: &Config{
				Localization: &Localization{Locales: []string{"en", "not a tag"}, DefaultLocale: "en"},
			},
			code: ProblemInvalidLocale,
			path: "localization.locales[1]",
		},
		{
			name: "default locale missing",
			cfg: &Config{
				Localization: &Localization{Locales: []string{"en"}, DefaultLocale: "de"},
			},
			code: ProblemInvalidLocale,
			path: "localization.defaultLocale",
		},
		{
			name: "duplicate slug across globals",
			cfg: &Config{
				Collections: []*Collection{{Slug: "settings", Fields: []*Field{{Name: "a", Kind: KindText}}}},
				Globals:     []*Collection{{Slug: "settings", Fields: []*Field{{Name: "a", Kind: KindText}}}},
			},
			code: ProblemDuplicateName,
			path: "globals.settings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Validate(tt.cfg)
			require.NotEmpty(t, problems)
			assert.Contains(t, codes(problems), tt.code)

			var paths []string
			for _, p := range problems {
				paths = append(paths, p.Path)
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestNewConfig_FailsFast(t *testing.T) {
	_, err := NewConfig(nil, []*Collection{{Slug: "posts", Fields: []*Field{
		{Name: "author", Kind: KindRelationship, RelationTo: []string{"ghosts"}},
	}}}, nil)
	require.Error(t, err)

	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ProblemUnknownRelation, invalid.Problems[0].Code)
	assert.Contains(t, err.Error(), `relationTo "ghosts" is not a registered collection`)
}
