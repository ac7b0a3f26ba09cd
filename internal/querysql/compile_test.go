package querysql

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqllayout"
	"github.com/roach88/folio/internal/where"
)

func testCompiler(t *testing.T, d Dialect) (*Compiler, *sqllayout.Layout) {
	t.Helper()

	users := &schema.Collection{Slug: "users", Fields: []*schema.Field{
		{Name: "name", Kind: schema.KindText},
	}}
	pages := &schema.Collection{Slug: "pages", Fields: []*schema.Field{
		{Name: "name", Kind: schema.KindText},
	}}
	posts := &schema.Collection{Slug: "posts", Fields: []*schema.Field{
		{Name: "title", Kind: schema.KindText, Localized: true},
		{Name: "slug", Kind: schema.KindText},
		{Name: "views", Kind: schema.KindNumber},
		{Name: "data", Kind: schema.KindJSON},
		{Name: "location", Kind: schema.KindPoint},
		{Name: "tags", Kind: schema.KindArray, Fields: []*schema.Field{
			{Name: "tag", Kind: schema.KindText},
		}},
		{Name: "layout", Kind: schema.KindBlocks, Blocks: []*schema.Block{
			{Slug: "cta", Fields: []*schema.Field{{Name: "heading", Kind: schema.KindText}}},
			{Slug: "quote", Fields: []*schema.Field{{Name: "text", Kind: schema.KindText}}},
		}},
		{Name: "author", Kind: schema.KindRelationship, RelationTo: []string{"users"}},
		{Name: "related", Kind: schema.KindRelationship, RelationTo: []string{"users", "pages"}},
	}}

	layouts := make(map[string]*sqllayout.Layout)
	for _, coll := range []*schema.Collection{users, pages, posts} {
		l, err := sqllayout.Build(coll)
		require.NoError(t, err)
		layouts[coll.Slug] = l
	}
	return NewCompiler(d, layouts, []string{"en", "fr"}, "en"), layouts["posts"]
}

func render(f Fragment) []byte {
	return []byte(fmt.Sprintf("%s\n-- args: %v\n", f.SQL, f.Args))
}

func TestSelect_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	t.Run("simple_equals", func(t *testing.T) {
		c, posts := testCompiler(t, SQLite)
		pred, err := c.Where(posts, where.Eq("views", float64(3)), "en")
		require.NoError(t, err)
		f, err := c.Select(posts, pred, nil, "en", 10, 0)
		require.NoError(t, err)
		g.Assert(t, "simple_equals", render(f))
	})

	t.Run("localized_and_array", func(t *testing.T) {
		c, posts := testCompiler(t, SQLite)
		pred, err := c.Where(posts,
			where.And{Exprs: []where.Expr{where.Eq("title", "Hello"), where.Eq("tags.tag", "go")}}, "en")
		require.NoError(t, err)
		f, err := c.Select(posts, pred, where.ParseSort("-views"), "en", 10, 20)
		require.NoError(t, err)
		g.Assert(t, "localized_and_array", render(f))
	})

	t.Run("relationship_postgres", func(t *testing.T) {
		c, posts := testCompiler(t, Postgres)
		pred, err := c.Where(posts, where.Eq("author.name", "Ada"), "en")
		require.NoError(t, err)
		f, err := c.Select(posts, pred, nil, "en", 0, 0)
		require.NoError(t, err)
		f.SQL = Postgres.Rebind(f.SQL)
		g.Assert(t, "relationship_postgres", render(f))
	})
}

func TestWhere_Leaves(t *testing.T) {
	tests := []struct {
		name string
		expr where.Expr
		sql  string
		args []any
	}{
		{
			name: "empty and matches all",
			expr: where.And{},
			sql:  "1 = 1",
		},
		{
			name: "empty or matches none",
			expr: where.Or{},
			sql:  "1 = 0",
		},
		{
			name: "not equals includes absent",
			expr: where.Condition{Path: "views", Operator: where.NotEquals, Value: "4"},
			sql:  `(t0."views" IS NULL OR t0."views" <> ?)`,
			args: []any{float64(4)},
		},
		{
			name: "equals null",
			expr: where.Eq("slug", nil),
			sql:  `t0."slug" IS NULL`,
		},
		{
			name: "empty in",
			expr: where.Condition{Path: "slug", Operator: where.In, Value: []any{}},
			sql:  "1 = 0",
		},
		{
			name: "empty not in",
			expr: where.Condition{Path: "slug", Operator: where.NotIn, Value: []any{}},
			sql:  "1 = 1",
		},
		{
			name: "in from comma list",
			expr: where.Condition{Path: "slug", Operator: where.In, Value: "a,b"},
			sql:  `t0."slug" IN (?, ?)`,
			args: []any{"a", "b"},
		},
		{
			name: "exists false",
			expr: where.Condition{Path: "data", Operator: where.Exists, Value: false},
			sql:  `t0."data" IS NULL`,
		},
		{
			name: "like every word",
			expr: where.Condition{Path: "slug", Operator: where.Like, Value: "Hello  World"},
			sql:  `(LOWER(t0."slug") LIKE ? ESCAPE '\' AND LOWER(t0."slug") LIKE ? ESCAPE '\')`,
			args: []any{"%hello%", "%world%"},
		},
		{
			name: "contains escapes wildcards",
			expr: where.Condition{Path: "slug", Operator: where.Contains, Value: "50%_off"},
			sql:  `LOWER(t0."slug") LIKE ? ESCAPE '\'`,
			args: []any{`%50\%\_off%`},
		},
		{
			name: "within box",
			expr: where.Condition{Path: "location", Operator: where.Within, Value: []any{
				[]any{float64(1), float64(2)}, []any{float64(3), float64(4)},
			}},
			sql:  `(t0."location_lng" BETWEEN ? AND ? AND t0."location_lat" BETWEEN ? AND ?)`,
			args: []any{float64(1), float64(3), float64(2), float64(4)},
		},
		{
			name: "block variant field",
			expr: where.Eq("layout.heading", "Buy"),
			sql:  `EXISTS (SELECT 1 FROM "posts_layout_cta" c1 WHERE c1."_parent_id" = t0."id" AND c1."heading" = ?)`,
			args: []any{"Buy"},
		},
		{
			name: "block type across variants",
			expr: where.Eq("layout.blockType", "quote"),
			sql: `(EXISTS (SELECT 1 FROM "posts_layout_cta" c1 WHERE c1."_parent_id" = t0."id" AND CAST(? AS TEXT) = ?)` +
				` OR EXISTS (SELECT 1 FROM "posts_layout_quote" c2 WHERE c2."_parent_id" = t0."id" AND CAST(? AS TEXT) = ?))`,
			args: []any{"cta", "quote", "quote", "quote"},
		},
		{
			name: "polymorphic with target",
			expr: where.Eq("related", map[string]any{"relationTo": "pages", "value": "p1"}),
			sql:  `(t0."related_relation_to" = ? AND t0."related_id" = ?)`,
			args: []any{"pages", "p1"},
		},
		{
			name: "polymorphic bare id",
			expr: where.Eq("related", "p1"),
			sql:  `t0."related_id" = ?`,
			args: []any{"p1"},
		},
		{
			name: "polymorphic relationTo part",
			expr: where.Eq("related.relationTo", "users"),
			sql:  `t0."related_relation_to" = ?`,
			args: []any{"users"},
		},
		{
			name: "element id",
			expr: where.Eq("tags.id", "e1"),
			sql:  `EXISTS (SELECT 1 FROM "posts_tags" c1 WHERE c1."_parent_id" = t0."id" AND c1."id" = ?)`,
			args: []any{"e1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, posts := testCompiler(t, SQLite)
			f, err := c.Where(posts, tt.expr, "en")
			require.NoError(t, err)
			assert.Equal(t, tt.sql, f.SQL)
			assert.Equal(t, tt.args, f.Args)
		})
	}
}

func TestWhere_LocaleAgnostic(t *testing.T) {
	c, posts := testCompiler(t, SQLite)

	f, err := c.Where(posts, where.Eq("title", "Hello"), schema.AllLocales)
	require.NoError(t, err)

	assert.Equal(t,
		`((SELECT l1."title" FROM "posts_locales" l1 WHERE l1."_parent_id" = t0."id" AND l1."_locale" = ?) = ?`+
			` OR (SELECT l2."title" FROM "posts_locales" l2 WHERE l2."_parent_id" = t0."id" AND l2."_locale" = ?) = ?)`,
		f.SQL)
	assert.Equal(t, []any{"en", "Hello", "fr", "Hello"}, f.Args)
}

func TestWhere_PolymorphicTraversal(t *testing.T) {
	c, posts := testCompiler(t, SQLite)

	f, err := c.Where(posts, where.Eq("related.name", "Ada"), "en")
	require.NoError(t, err)

	assert.Equal(t,
		`(EXISTS (SELECT 1 FROM "users" r1 WHERE r1."id" = t0."related_id" AND t0."related_relation_to" = ? AND r1."name" = ?)`+
			` OR EXISTS (SELECT 1 FROM "pages" r2 WHERE r2."id" = t0."related_id" AND t0."related_relation_to" = ? AND r2."name" = ?))`,
		f.SQL)
	assert.Equal(t, []any{"users", "Ada", "pages", "Ada"}, f.Args)
}

func TestWhere_Errors(t *testing.T) {
	tests := []struct {
		name  string
		expr  where.Expr
		code  dberr.Code
		field string
	}{
		{"unknown field", where.Eq("nope", 1), dberr.CodeUnknownField, "nope"},
		{"unknown nested field", where.Eq("tags.nope", 1), dberr.CodeUnknownField, "tags.nope"},
		{"unknown field past relationship", where.Eq("author.nope", 1), dberr.CodeUnknownField, "author.nope"},
		{"near on text", where.Condition{Path: "slug", Operator: where.Near, Value: "1,2,3"}, dberr.CodeInvalidOperator, "slug"},
		{"like on number", where.Condition{Path: "views", Operator: where.Like, Value: "1"}, dberr.CodeInvalidOperator, "views"},
		{"equals on json", where.Eq("data", "x"), dberr.CodeInvalidOperator, "data"},
		{"array leaf", where.Eq("tags", "x"), dberr.CodeInvalidOperator, "tags"},
		{"uncoercible number", where.Condition{Path: "views", Operator: where.GreaterThan, Value: "many"}, dberr.CodeInvalidValue, "views"},
		{"error past relationship names full path", where.Condition{Path: "author.name", Operator: where.Near, Value: "1,2,3"}, dberr.CodeInvalidOperator, "author.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, posts := testCompiler(t, SQLite)
			_, err := c.Where(posts, tt.expr, "en")
			require.Error(t, err)
			assert.Equal(t, tt.code, dberr.CodeOf(err))
			assert.Equal(t, tt.field, dberr.FieldOf(err))
		})
	}
}

func TestOrderBy(t *testing.T) {
	c, posts := testCompiler(t, SQLite)

	f, err := c.OrderBy(posts, where.ParseSort("slug,-views"), "en")
	require.NoError(t, err)
	assert.Equal(t,
		`(t0."slug" IS NULL) DESC, t0."slug" COLLATE BINARY ASC, (t0."views" IS NULL) ASC, t0."views" DESC, t0."id" COLLATE BINARY ASC`,
		f.SQL)
	assert.Empty(t, f.Args)

	for _, path := range []string{"tags.tag", "author.name", "location", "layout.heading"} {
		_, err := c.OrderBy(posts, []where.SortKey{{Path: path}}, "en")
		assert.Equal(t, dberr.CodeInvalidOperator, dberr.CodeOf(err), path)
	}
}

func TestWhere_ValuesAreNeverInterpolated(t *testing.T) {
	c, posts := testCompiler(t, SQLite)
	payload := `x'); DROP TABLE posts; --`

	pred, err := c.Where(posts, where.Or{Exprs: []where.Expr{
		where.Eq("slug", payload),
		where.Eq("title", payload),
		where.Eq("tags.tag", payload),
		where.Condition{Path: "slug", Operator: where.Like, Value: payload},
		where.Eq("author.name", payload),
	}}, "en")
	require.NoError(t, err)
	f, err := c.Select(posts, pred, nil, "en", 10, 0)
	require.NoError(t, err)

	assert.NotContains(t, f.SQL, "DROP")
	assert.Contains(t, f.Args, payload)
}

func TestCountAndIDs(t *testing.T) {
	c, posts := testCompiler(t, SQLite)
	pred, err := c.Where(posts, where.Eq("slug", "a"), "en")
	require.NoError(t, err)

	count := c.Count(posts, pred)
	assert.Equal(t, `SELECT COUNT(*) FROM "posts" t0 WHERE t0."slug" = ?`, count.SQL)
	assert.Equal(t, []any{"a"}, count.Args)

	ids := c.IDs(posts, pred)
	assert.Equal(t, `SELECT t0."id" FROM "posts" t0 WHERE t0."slug" = ?`, ids.SQL)
}

func TestWhere_NestedChildUsesRowKey(t *testing.T) {
	coll := &schema.Collection{Slug: "menus", Fields: []*schema.Field{
		{Name: "sections", Kind: schema.KindArray, Fields: []*schema.Field{
			{Name: "links", Kind: schema.KindArray, Fields: []*schema.Field{
				{Name: "label", Kind: schema.KindText, Localized: true},
			}},
		}},
	}}
	l, err := sqllayout.Build(coll)
	require.NoError(t, err)
	c := NewCompiler(SQLite, map[string]*sqllayout.Layout{"menus": l}, []string{"en"}, "en")

	f, err := c.Where(l, where.Eq("sections.links.label", "Home"), "en")
	require.NoError(t, err)
	assert.Equal(t,
		`EXISTS (SELECT 1 FROM "menus_sections" c1 WHERE c1."_parent_id" = t0."id" AND `+
			`EXISTS (SELECT 1 FROM "menus_sections_links" c2 WHERE c2."_parent_id" = c1."_key" AND `+
			`(SELECT l3."label" FROM "menus_sections_links_locales" l3 WHERE l3."_parent_id" = c2."_key" AND l3."_locale" = ?) = ?))`,
		f.SQL)
	assert.Equal(t, []any{"en", "Home"}, f.Args)
}

func TestDialect(t *testing.T) {
	assert.Equal(t, `SELECT $1, '?', "a?" WHERE x LIKE $2 ESCAPE '\'`,
		Postgres.Rebind(`SELECT ?, '?', "a?" WHERE x LIKE ? ESCAPE '\'`))
	assert.Equal(t, "a = ?", SQLite.Rebind("a = ?"))

	assert.Equal(t, " LIMIT 10 OFFSET 5", SQLite.LimitOffset(10, 5))
	assert.Equal(t, " LIMIT -1 OFFSET 5", SQLite.LimitOffset(0, 5))
	assert.Equal(t, " OFFSET 5", Postgres.LimitOffset(0, 5))
	assert.Equal(t, "", Postgres.LimitOffset(0, 0))

	assert.Equal(t, "DOUBLE PRECISION", Postgres.ColumnType(sqllayout.TypeNumber))
	assert.Equal(t, "INTEGER", SQLite.ColumnType(sqllayout.TypeBool))
	assert.Equal(t, `"we""ird"`, SQLite.Quote(`we"ird`))

	d, ok := DialectFor("pgx")
	assert.True(t, ok)
	assert.Equal(t, "postgres", d.Name)
}
