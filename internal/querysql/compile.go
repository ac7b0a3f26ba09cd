package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqllayout"
	"github.com/roach88/folio/internal/where"
)

// RootAlias is the alias of the collection's parent table in every
// compiled statement.
const RootAlias = "t0"

// Fragment is a piece of SQL with ? placeholders and the values bound to
// them, in order. Operand values never appear in SQL.
type Fragment struct {
	SQL  string
	Args []any
}

// Compiler compiles Where expressions and sort keys into parameterized SQL
// over the relational layout.
//
// Conditions on localized fields read the locale table through a scalar
// sub-query so an absent translation behaves as NULL. Conditions under an
// array or blocks field compile to EXISTS over the child table: a row
// matches when any element matches. Conditions that continue past a
// relationship compile to EXISTS over the target collection's table.
type Compiler struct {
	Dialect Dialect

	// Layouts holds the layout of every collection by slug. Relationship
	// traversal looks targets up here.
	Layouts map[string]*sqllayout.Layout

	// Locales are the configured locales. A locale-agnostic condition on a
	// localized field matches when any of them matches.
	Locales       []string
	DefaultLocale string
}

// NewCompiler creates a Compiler.
func NewCompiler(d Dialect, layouts map[string]*sqllayout.Layout, locales []string, defaultLocale string) *Compiler {
	return &Compiler{
		Dialect:       d,
		Layouts:       layouts,
		Locales:       locales,
		DefaultLocale: defaultLocale,
	}
}

// Where compiles e against the parent table of l, aliased RootAlias.
// Locale selects the translation localized conditions apply to;
// schema.AllLocales makes them locale-agnostic.
func (c *Compiler) Where(l *sqllayout.Layout, e where.Expr, locale string) (Fragment, error) {
	s := c.state(locale)
	return s.expr(l, RootAlias, e)
}

// Select compiles a page query around a predicate returned by Where.
// A limit of 0 returns every row.
func (c *Compiler) Select(l *sqllayout.Layout, pred Fragment, keys []where.SortKey, locale string, limit, offset int) (Fragment, error) {
	order, err := c.OrderBy(l, keys, locale)
	if err != nil {
		return Fragment{}, err
	}
	return cat(
		"SELECT ", RootAlias, ".* FROM ", c.Dialect.Quote(l.Root.Name), " ", RootAlias,
		" WHERE ", pred,
		" ORDER BY ", order,
		c.Dialect.LimitOffset(limit, offset),
	), nil
}

// Count compiles a query counting the rows matching pred.
func (c *Compiler) Count(l *sqllayout.Layout, pred Fragment) Fragment {
	return cat("SELECT COUNT(*) FROM ", c.Dialect.Quote(l.Root.Name), " ", RootAlias, " WHERE ", pred)
}

// IDs compiles a query selecting the ids of the rows matching pred.
func (c *Compiler) IDs(l *sqllayout.Layout, pred Fragment) Fragment {
	return cat("SELECT ", RootAlias, ".", c.Dialect.Quote(sqllayout.ColID),
		" FROM ", c.Dialect.Quote(l.Root.Name), " ", RootAlias, " WHERE ", pred)
}

// OrderBy compiles sort keys for the parent table of l. Absent values sort
// first ascending and last descending; ties are broken by id.
func (c *Compiler) OrderBy(l *sqllayout.Layout, keys []where.SortKey, locale string) (Fragment, error) {
	return c.state(locale).orderBy(l, keys)
}

func (c *Compiler) state(locale string) *state {
	if locale == "" {
		locale = c.DefaultLocale
	}
	return &state{c: c, q: c.Dialect.Quote, locale: locale}
}

// state carries one compilation: the request locale and the alias counter.
type state struct {
	c      *Compiler
	q      func(string) string
	locale string
	n      int
}

func (s *state) alias(prefix string) string {
	s.n++
	return fmt.Sprintf("%s%d", prefix, s.n)
}

func (s *state) expr(l *sqllayout.Layout, alias string, e where.Expr) (Fragment, error) {
	switch n := e.(type) {
	case nil:
		return always, nil
	case where.And:
		parts, err := s.exprs(l, alias, n.Exprs)
		if err != nil {
			return Fragment{}, err
		}
		return and(parts), nil
	case where.Or:
		parts, err := s.exprs(l, alias, n.Exprs)
		if err != nil {
			return Fragment{}, err
		}
		return or(parts), nil
	case where.Condition:
		return s.condition(l, alias, n)
	}
	return Fragment{}, fmt.Errorf("unsupported where node %T", e)
}

func (s *state) exprs(l *sqllayout.Layout, alias string, exprs []where.Expr) ([]Fragment, error) {
	parts := make([]Fragment, 0, len(exprs))
	for _, e := range exprs {
		f, err := s.expr(l, alias, e)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	return parts, nil
}

// condition resolves the path and ORs the alternatives; a path through a
// blocks field has one alternative per matching variant.
func (s *state) condition(l *sqllayout.Layout, alias string, c where.Condition) (Fragment, error) {
	paths, err := schema.ResolvePath(l.Collection.Fields, c.Path)
	if err != nil {
		return Fragment{}, err
	}
	alts := make([]Fragment, 0, len(paths))
	for _, p := range paths {
		f, err := s.steps(l.Root, alias, p.Steps, p.Rest, c)
		if err != nil {
			return Fragment{}, err
		}
		alts = append(alts, f)
	}
	return or(alts), nil
}

func (s *state) steps(t *sqllayout.Table, alias string, steps []schema.Step, rest string, c where.Condition) (Fragment, error) {
	step := steps[0]
	if len(steps) > 1 {
		switch step.Field.Kind {
		case schema.KindGroup:
			return s.steps(t, alias, steps[1:], rest, c)
		case schema.KindArray, schema.KindBlocks:
			child := t.Child(step.Field, step.Block)
			if child == nil {
				return Fragment{}, fmt.Errorf("no child table for %s", step.Field.Name)
			}
			ca := s.alias("c")
			inner, err := s.steps(child, ca, steps[1:], rest, c)
			if err != nil {
				return Fragment{}, err
			}
			return cat("EXISTS (SELECT 1 FROM ", s.q(child.Name), " ", ca,
				" WHERE ", ca, ".", s.q(sqllayout.ColParentID), " = ", alias, ".", s.q(t.Key()),
				" AND ", inner, ")"), nil
		}
	}
	if rest != "" {
		return s.relation(t, alias, step.Field, rest, c)
	}
	return s.leaf(t, alias, step.Field, c)
}

// leaf compiles a condition on a field stored in t.
func (s *state) leaf(t *sqllayout.Table, alias string, f *schema.Field, c where.Condition) (Fragment, error) {
	v, err := where.Bind(c.Path, f, c.Operator, c.Value)
	if err != nil {
		return Fragment{}, err
	}

	switch f {
	case schema.IDField:
		return scalarCond(frag(alias+"."+s.q(sqllayout.ColID)), c.Operator, v), nil
	case schema.BlockTypeField:
		// The variant is implied by the child table.
		return scalarCond(cat("CAST(", arg(t.Block.Slug), " AS TEXT)"), c.Operator, v), nil
	}

	return s.forLocales(f, func(locale string) (Fragment, error) {
		switch f.Kind {
		case schema.KindPoint:
			lng := s.column(t, alias, t.Column(f, sqllayout.PartLng), locale)
			lat := s.column(t, alias, t.Column(f, sqllayout.PartLat), locale)
			return pointCond(lng, lat, c.Operator, v), nil
		case schema.KindRelationship:
			id := s.column(t, alias, t.Column(f, sqllayout.PartValue), locale)
			var relTo *Fragment
			if col := t.Column(f, sqllayout.PartRelationTo); col != nil {
				rt := s.column(t, alias, col, locale)
				relTo = &rt
			}
			return relationCond(id, relTo, c.Operator, v), nil
		}
		col := t.Column(f, sqllayout.PartValue)
		if col == nil {
			return Fragment{}, fmt.Errorf("no column for %s", f.Name)
		}
		return scalarCond(s.column(t, alias, col, locale), c.Operator, v), nil
	})
}

// relation compiles a condition continuing past relationship f. The
// polymorphic parts "value" and "relationTo" are addressed directly; any
// other remainder is matched against each target collection.
func (s *state) relation(t *sqllayout.Table, alias string, f *schema.Field, rest string, c where.Condition) (Fragment, error) {
	if f.Polymorphic() && (rest == "value" || rest == "relationTo") {
		part, pseudo := sqllayout.PartValue, &schema.Field{Name: rest, Kind: schema.KindText}
		if rest == "relationTo" {
			part, pseudo = sqllayout.PartRelationTo, &schema.Field{Name: rest, Kind: schema.KindSelect, Options: f.RelationTo}
		}
		v, err := where.Bind(c.Path, pseudo, c.Operator, c.Value)
		if err != nil {
			return Fragment{}, err
		}
		return s.forLocales(f, func(locale string) (Fragment, error) {
			return scalarCond(s.column(t, alias, t.Column(f, part), locale), c.Operator, v), nil
		})
	}

	prefix := strings.TrimSuffix(c.Path, rest)
	return s.forLocales(f, func(locale string) (Fragment, error) {
		var alts []Fragment
		for _, slug := range f.RelationTo {
			target, ok := s.c.Layouts[slug]
			if !ok {
				return Fragment{}, dberr.UnknownCollection(slug)
			}
			if _, err := schema.ResolvePath(target.Collection.Fields, rest); err != nil {
				continue
			}

			ra := s.alias("r")
			inner, err := s.condition(target, ra, where.Condition{Path: rest, Operator: c.Operator, Value: c.Value})
			if err != nil {
				return Fragment{}, qualify(err, prefix)
			}

			link := cat(ra, ".", s.q(sqllayout.ColID), " = ", s.column(t, alias, t.Column(f, sqllayout.PartValue), locale))
			if col := t.Column(f, sqllayout.PartRelationTo); col != nil {
				link = cat(link, " AND ", s.column(t, alias, col, locale), " = ", arg(slug))
			}
			alts = append(alts, cat("EXISTS (SELECT 1 FROM ", s.q(target.Root.Name), " ", ra,
				" WHERE ", link, " AND ", inner, ")"))
		}
		if len(alts) == 0 {
			return Fragment{}, dberr.UnknownField(c.Path)
		}
		return or(alts), nil
	})
}

// forLocales builds a condition for the request locale, or ORs it over
// every configured locale when the request is locale-agnostic.
func (s *state) forLocales(f *schema.Field, build func(locale string) (Fragment, error)) (Fragment, error) {
	if !f.Localized || s.locale != schema.AllLocales {
		return build(s.locale)
	}
	alts := make([]Fragment, 0, len(s.c.Locales))
	for _, locale := range s.c.Locales {
		f, err := build(locale)
		if err != nil {
			return Fragment{}, err
		}
		alts = append(alts, f)
	}
	return or(alts), nil
}

// column returns the expression reading col. Localized columns are read
// from the locale table; a missing translation yields NULL.
func (s *state) column(t *sqllayout.Table, alias string, col *sqllayout.Column, locale string) Fragment {
	if !col.Localized {
		return frag(alias + "." + s.q(col.Name))
	}
	la := s.alias("l")
	return cat("(SELECT ", la, ".", s.q(col.Name), " FROM ", s.q(t.LocalesName()), " ", la,
		" WHERE ", la, ".", s.q(sqllayout.ColParentID), " = ", alias, ".", s.q(t.Key()),
		" AND ", la, ".", s.q(sqllayout.ColLocale), " = ", arg(locale), ")")
}

func (s *state) orderBy(l *sqllayout.Layout, keys []where.SortKey) (Fragment, error) {
	locale := s.locale
	if locale == schema.AllLocales {
		locale = s.c.DefaultLocale
	}

	var parts []Fragment
	for _, k := range keys {
		expr, text, err := s.sortColumn(l, k.Path, locale)
		if err != nil {
			return Fragment{}, err
		}
		sorted := expr
		if text {
			sorted = cat(expr, s.c.Dialect.Collate())
		}
		if k.Desc {
			parts = append(parts, cat("(", expr, " IS NULL) ASC, ", sorted, " DESC"))
		} else {
			parts = append(parts, cat("(", expr, " IS NULL) DESC, ", sorted, " ASC"))
		}
	}
	parts = append(parts, frag(RootAlias+"."+s.q(sqllayout.ColID)+s.c.Dialect.Collate()+" ASC"))
	return join(", ", parts), nil
}

// sortColumn resolves a sort path to a column of the parent table.
func (s *state) sortColumn(l *sqllayout.Layout, path, locale string) (Fragment, bool, error) {
	paths, err := schema.ResolvePath(l.Collection.Fields, path)
	if err != nil {
		return Fragment{}, false, err
	}
	p := paths[0]
	leaf := p.Leaf()
	if len(paths) > 1 || p.Rest != "" || p.CrossesCollection() {
		return Fragment{}, false, dberr.InvalidOperator(path, "sort", string(leaf.Kind))
	}
	if leaf == schema.IDField {
		return frag(RootAlias + "." + s.q(sqllayout.ColID)), true, nil
	}

	switch leaf.Kind {
	case schema.KindText, schema.KindSelect, schema.KindDate, schema.KindRelationship:
		return s.column(l.Root, RootAlias, l.Root.Column(leaf, sqllayout.PartValue), locale), true, nil
	case schema.KindNumber, schema.KindCheckbox:
		return s.column(l.Root, RootAlias, l.Root.Column(leaf, sqllayout.PartValue), locale), false, nil
	}
	return Fragment{}, false, dberr.InvalidOperator(path, "sort", string(leaf.Kind))
}

// qualify rewrites the field of an error raised inside a relationship
// target so it names the full path.
func qualify(err error, prefix string) error {
	var e *dberr.Error
	if errors.As(err, &e) && e.Field != "" {
		cp := *e
		cp.Field = prefix + e.Field
		return &cp
	}
	return err
}

func scalarCond(col Fragment, op where.Operator, v any) Fragment {
	switch op {
	case where.Exists:
		return isNull(col, !v.(bool))
	case where.Equals:
		if v == nil {
			return isNull(col, true)
		}
		return cat(col, " = ", arg(v))
	case where.NotEquals:
		if v == nil {
			return isNull(col, false)
		}
		return cat("(", col, " IS NULL OR ", col, " <> ", arg(v), ")")
	case where.GreaterThan:
		return cat(col, " > ", arg(v))
	case where.GreaterThanEqual:
		return cat(col, " >= ", arg(v))
	case where.LessThan:
		return cat(col, " < ", arg(v))
	case where.LessThanEqual:
		return cat(col, " <= ", arg(v))
	case where.In:
		items := v.([]any)
		if len(items) == 0 {
			return never
		}
		return cat(col, " IN (", args(items), ")")
	case where.NotIn:
		items := v.([]any)
		if len(items) == 0 {
			return always
		}
		return cat("(", col, " IS NULL OR ", col, " NOT IN (", args(items), "))")
	case where.Like:
		words := v.([]string)
		parts := make([]Fragment, len(words))
		for i, w := range words {
			parts[i] = cat("LOWER(", col, `) LIKE `, arg(LikePattern(w)), ` ESCAPE '\'`)
		}
		return and(parts)
	case where.Contains:
		return cat("LOWER(", col, `) LIKE `, arg(LikePattern(v.(string))), ` ESCAPE '\'`)
	}
	return never
}

func pointCond(lng, lat Fragment, op where.Operator, v any) Fragment {
	switch op {
	case where.Exists:
		return isNull(lng, !v.(bool))
	case where.Equals:
		if v == nil {
			return isNull(lng, true)
		}
		p := v.([]any)
		return cat("(", lng, " = ", arg(p[0]), " AND ", lat, " = ", arg(p[1]), ")")
	case where.NotEquals:
		if v == nil {
			return isNull(lng, false)
		}
		p := v.([]any)
		return cat("(", lng, " IS NULL OR NOT (", lng, " = ", arg(p[0]), " AND ", lat, " = ", arg(p[1]), "))")
	case where.Near, where.Within:
		area := v.(where.Area)
		cond := inBox(lng, lat, area.Outer)
		if area.Inner != nil {
			cond = cat("(", cond, " AND NOT ", inBox(lng, lat, *area.Inner), ")")
		}
		return cond
	}
	return never
}

func inBox(lng, lat Fragment, b where.Box) Fragment {
	return cat("(", lng, " BETWEEN ", arg(b.MinLng), " AND ", arg(b.MaxLng),
		" AND ", lat, " BETWEEN ", arg(b.MinLat), " AND ", arg(b.MaxLat), ")")
}

func relationCond(id Fragment, relTo *Fragment, op where.Operator, v any) Fragment {
	eq := func(r document.Relationship) Fragment {
		if relTo != nil && r.RelationTo != "" {
			return cat("(", *relTo, " = ", arg(r.RelationTo), " AND ", id, " = ", arg(r.Value), ")")
		}
		return cat(id, " = ", arg(r.Value))
	}
	anyOf := func(items []any) Fragment {
		parts := make([]Fragment, len(items))
		for i, item := range items {
			parts[i] = eq(item.(document.Relationship))
		}
		return or(parts)
	}

	switch op {
	case where.Exists:
		return isNull(id, !v.(bool))
	case where.Equals:
		if v == nil {
			return isNull(id, true)
		}
		return eq(v.(document.Relationship))
	case where.NotEquals:
		if v == nil {
			return isNull(id, false)
		}
		return cat("(", id, " IS NULL OR NOT ", eq(v.(document.Relationship)), ")")
	case where.In:
		return anyOf(v.([]any))
	case where.NotIn:
		items := v.([]any)
		if len(items) == 0 {
			return always
		}
		return cat("(", id, " IS NULL OR NOT ", anyOf(items), ")")
	}
	return never
}

// LikePattern escapes s for LIKE ... ESCAPE '\' and wraps it in %.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

var (
	always = frag("1 = 1")
	never  = frag("1 = 0")
)

func frag(sql string) Fragment {
	return Fragment{SQL: sql}
}

func arg(v any) Fragment {
	return Fragment{SQL: "?", Args: []any{v}}
}

func args(vs []any) Fragment {
	parts := make([]Fragment, len(vs))
	for i, v := range vs {
		parts[i] = arg(v)
	}
	return join(", ", parts)
}

func isNull(col Fragment, null bool) Fragment {
	if null {
		return cat(col, " IS NULL")
	}
	return cat(col, " IS NOT NULL")
}

// cat concatenates strings and fragments, keeping argument order.
func cat(parts ...any) Fragment {
	var out Fragment
	var sb strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			sb.WriteString(v)
		case Fragment:
			sb.WriteString(v.SQL)
			out.Args = append(out.Args, v.Args...)
		default:
			panic(fmt.Sprintf("querysql: cannot concatenate %T", p))
		}
	}
	out.SQL = sb.String()
	return out
}

func join(sep string, parts []Fragment) Fragment {
	items := make([]any, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			items = append(items, sep)
		}
		items = append(items, p)
	}
	return cat(items...)
}

func and(parts []Fragment) Fragment {
	switch len(parts) {
	case 0:
		return always
	case 1:
		return parts[0]
	}
	return cat("(", join(" AND ", parts), ")")
}

func or(parts []Fragment) Fragment {
	switch len(parts) {
	case 0:
		return never
	case 1:
		return parts[0]
	}
	return cat("(", join(" OR ", parts), ")")
}
