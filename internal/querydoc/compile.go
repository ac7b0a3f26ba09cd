// Package querydoc compiles Where expressions into MongoDB query
// documents.
//
// Documents are stored in their logical shape with _id in place of id:
// groups are sub-documents, localized values are locale-keyed
// sub-documents, arrays and blocks are arrays of element documents and
// points are legacy [lng, lat] pairs.
//
// Conditions below an array or blocks field compile to $elemMatch, so a
// document matches when any one element satisfies the whole condition;
// blocks conditions also pin the element's blockType to the variant the
// path resolved in. Conditions continuing past a relationship are resolved
// through a Resolver that returns the matching target ids.
//
// The null semantics follow the relational compiler: not_equals and not_in
// match absent values, comparisons never do, an empty in matches nothing
// and an empty not_in matches everything.
package querydoc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// IDKey is the storage key of the document id.
const IDKey = "_id"

// Resolver returns the ids of the documents of target matching cond.
type Resolver func(ctx context.Context, target *schema.Collection, cond where.Expr, locale string) ([]string, error)

var (
	always = bson.D{}
	never  = bson.D{{Key: "$nor", Value: bson.A{bson.D{}}}}
)

// Compiler compiles Where expressions and sort keys into query documents.
type Compiler struct {
	Config *schema.Config
}

// NewCompiler creates a Compiler.
func NewCompiler(cfg *schema.Config) *Compiler {
	return &Compiler{Config: cfg}
}

type state struct {
	c       *Compiler
	ctx     context.Context
	locale  string
	resolve Resolver
}

// Filter compiles e against coll. Locale selects the translation localized
// conditions apply to; schema.AllLocales makes them locale-agnostic.
// Resolve is called for every condition crossing a relationship.
func (c *Compiler) Filter(ctx context.Context, coll *schema.Collection, e where.Expr, locale string, resolve Resolver) (bson.D, error) {
	if locale == "" {
		locale = c.Config.DefaultLocale()
	}
	s := &state{c: c, ctx: ctx, locale: locale, resolve: resolve}
	return s.expr(coll.Fields, e)
}

func (s *state) expr(fields []*schema.Field, e where.Expr) (bson.D, error) {
	switch n := e.(type) {
	case nil:
		return always, nil
	case where.And:
		parts, err := s.exprs(fields, n.Exprs)
		if err != nil {
			return nil, err
		}
		return and(parts), nil
	case where.Or:
		parts, err := s.exprs(fields, n.Exprs)
		if err != nil {
			return nil, err
		}
		return or(parts), nil
	case where.Condition:
		return s.condition(fields, n)
	}
	return nil, fmt.Errorf("unsupported where node %T", e)
}

func (s *state) exprs(fields []*schema.Field, exprs []where.Expr) ([]bson.D, error) {
	parts := make([]bson.D, 0, len(exprs))
	for _, e := range exprs {
		d, err := s.expr(fields, e)
		if err != nil {
			return nil, err
		}
		parts = append(parts, d)
	}
	return parts, nil
}

func (s *state) condition(fields []*schema.Field, c where.Condition) (bson.D, error) {
	paths, err := schema.ResolvePath(fields, c.Path)
	if err != nil {
		return nil, err
	}
	alts := make([]bson.D, 0, len(paths))
	for _, p := range paths {
		d, err := s.steps(p.Steps, "", true, p.Rest, c)
		if err != nil {
			return nil, err
		}
		alts = append(alts, d)
	}
	return or(alts), nil
}

// steps compiles the remaining steps of a path. prefix is the dotted key
// of the enclosing group within the current document or element.
func (s *state) steps(steps []schema.Step, prefix string, root bool, rest string, c where.Condition) (bson.D, error) {
	step := steps[0]
	key := join(prefix, step.Field.Name)
	if len(steps) > 1 {
		switch step.Field.Kind {
		case schema.KindGroup:
			return s.steps(steps[1:], key, root, rest, c)
		case schema.KindArray, schema.KindBlocks:
			inner, err := s.steps(steps[1:], "", false, rest, c)
			if err != nil {
				return nil, err
			}
			if step.Block != nil {
				inner = and([]bson.D{{{Key: schema.FieldBlockType, Value: step.Block.Slug}}, inner})
			}
			return bson.D{{Key: key, Value: bson.D{{Key: "$elemMatch", Value: inner}}}}, nil
		}
	}
	if rest != "" {
		return s.relation(key, step.Field, rest, c)
	}
	return s.leaf(key, root, step.Field, c)
}

func (s *state) leaf(key string, root bool, f *schema.Field, c where.Condition) (bson.D, error) {
	v, err := where.Bind(c.Path, f, c.Operator, c.Value)
	if err != nil {
		return nil, err
	}

	if f == schema.IDField {
		if root {
			key = IDKey
		}
		return scalarCond(key, c.Operator, v), nil
	}
	if f == schema.BlockTypeField {
		return scalarCond(key, c.Operator, v), nil
	}

	return s.forLocales(f, key, func(key string) (bson.D, error) {
		switch f.Kind {
		case schema.KindPoint:
			return pointCond(key, c.Operator, v), nil
		case schema.KindRelationship:
			return relationCond(key, f.Polymorphic(), c.Operator, v), nil
		}
		return scalarCond(key, c.Operator, v), nil
	})
}

func (s *state) relation(key string, f *schema.Field, rest string, c where.Condition) (bson.D, error) {
	if f.Polymorphic() && (rest == "value" || rest == "relationTo") {
		pseudo := &schema.Field{Name: rest, Kind: schema.KindText}
		if rest == "relationTo" {
			pseudo = &schema.Field{Name: rest, Kind: schema.KindSelect, Options: f.RelationTo}
		}
		v, err := where.Bind(c.Path, pseudo, c.Operator, c.Value)
		if err != nil {
			return nil, err
		}
		return s.forLocales(f, key, func(key string) (bson.D, error) {
			return scalarCond(key+"."+rest, c.Operator, v), nil
		})
	}

	prefix := strings.TrimSuffix(c.Path, rest)
	return s.forLocales(f, key, func(key string) (bson.D, error) {
		var alts []bson.D
		for _, slug := range f.RelationTo {
			target, ok := s.c.Config.Collection(slug)
			if !ok {
				return nil, dberr.UnknownCollection(slug)
			}
			if _, err := schema.ResolvePath(target.Fields, rest); err != nil {
				continue
			}
			if err := s.ctx.Err(); err != nil {
				return nil, err
			}

			ids, err := s.resolve(s.ctx, target, where.Condition{Path: rest, Operator: c.Operator, Value: c.Value}, s.locale)
			if err != nil {
				return nil, qualify(err, prefix)
			}
			in := make(bson.A, len(ids))
			for i, id := range ids {
				in[i] = id
			}

			if f.Polymorphic() {
				alts = append(alts, and([]bson.D{
					{{Key: key + ".relationTo", Value: slug}},
					{{Key: key + ".value", Value: bson.D{{Key: "$in", Value: in}}}},
				}))
			} else {
				alts = append(alts, bson.D{{Key: key, Value: bson.D{{Key: "$in", Value: in}}}})
			}
		}
		if len(alts) == 0 {
			return nil, dberr.UnknownField(c.Path)
		}
		return or(alts), nil
	})
}

// forLocales builds a condition on the request locale's entry, or ORs it
// over every configured locale when the request is locale-agnostic.
func (s *state) forLocales(f *schema.Field, key string, build func(key string) (bson.D, error)) (bson.D, error) {
	if !f.Localized {
		return build(key)
	}
	if s.locale != schema.AllLocales {
		return build(key + "." + s.locale)
	}
	locales := s.c.Config.Locales()
	alts := make([]bson.D, 0, len(locales))
	for _, locale := range locales {
		d, err := build(key + "." + locale)
		if err != nil {
			return nil, err
		}
		alts = append(alts, d)
	}
	return or(alts), nil
}

// Sort compiles sort keys. Absent values sort first ascending and last
// descending; ties are broken by id.
func (c *Compiler) Sort(coll *schema.Collection, keys []where.SortKey, locale string) (bson.D, error) {
	if locale == "" || locale == schema.AllLocales {
		locale = c.Config.DefaultLocale()
	}

	var out bson.D
	for _, k := range keys {
		key, err := sortKey(coll, k.Path, locale)
		if err != nil {
			return nil, err
		}
		dir := 1
		if k.Desc {
			dir = -1
		}
		if key == IDKey {
			out = append(out, bson.E{Key: IDKey, Value: dir})
			return out, nil
		}
		out = append(out, bson.E{Key: key, Value: dir})
	}
	return append(out, bson.E{Key: IDKey, Value: 1}), nil
}

func sortKey(coll *schema.Collection, path, locale string) (string, error) {
	paths, err := schema.ResolvePath(coll.Fields, path)
	if err != nil {
		return "", err
	}
	p := paths[0]
	leaf := p.Leaf()
	if len(paths) > 1 || p.Rest != "" || p.CrossesCollection() {
		return "", dberr.InvalidOperator(path, "sort", string(leaf.Kind))
	}
	if leaf == schema.IDField {
		return IDKey, nil
	}

	switch leaf.Kind {
	case schema.KindText, schema.KindSelect, schema.KindDate, schema.KindNumber, schema.KindCheckbox, schema.KindRelationship:
	default:
		return "", dberr.InvalidOperator(path, "sort", string(leaf.Kind))
	}

	key := p.String()
	if leaf.Localized {
		key += "." + locale
	}
	if leaf.Kind == schema.KindRelationship && leaf.Polymorphic() {
		key += ".value"
	}
	return key, nil
}

func qualify(err error, prefix string) error {
	var e *dberr.Error
	if errors.As(err, &e) && e.Field != "" {
		cp := *e
		cp.Field = prefix + e.Field
		return &cp
	}
	return err
}

func op(key, name string, v any) bson.D {
	return bson.D{{Key: key, Value: bson.D{{Key: name, Value: v}}}}
}

func isNull(key string, null bool) bson.D {
	if null {
		return op(key, "$eq", nil)
	}
	return bson.D{{Key: key, Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}}}
}

func scalarCond(key string, o where.Operator, v any) bson.D {
	switch o {
	case where.Exists:
		return isNull(key, !v.(bool))
	case where.Equals:
		return op(key, "$eq", v)
	case where.NotEquals:
		return op(key, "$ne", v)
	case where.GreaterThan:
		return op(key, "$gt", v)
	case where.GreaterThanEqual:
		return op(key, "$gte", v)
	case where.LessThan:
		return op(key, "$lt", v)
	case where.LessThanEqual:
		return op(key, "$lte", v)
	case where.In:
		items := v.([]any)
		if len(items) == 0 {
			return never
		}
		return op(key, "$in", bson.A(items))
	case where.NotIn:
		items := v.([]any)
		if len(items) == 0 {
			return always
		}
		return op(key, "$nin", bson.A(items))
	case where.Like:
		words := v.([]string)
		parts := make([]bson.D, len(words))
		for i, w := range words {
			parts[i] = regex(key, w)
		}
		return and(parts)
	case where.Contains:
		return regex(key, v.(string))
	}
	return never
}

func regex(key, substring string) bson.D {
	return bson.D{{Key: key, Value: bson.D{
		{Key: "$regex", Value: regexp.QuoteMeta(substring)},
		{Key: "$options", Value: "i"},
	}}}
}

func pointCond(key string, o where.Operator, v any) bson.D {
	switch o {
	case where.Exists:
		return isNull(key, !v.(bool))
	case where.Equals:
		if v == nil {
			return isNull(key, true)
		}
		return op(key, "$eq", bson.A(v.([]any)))
	case where.NotEquals:
		if v == nil {
			return isNull(key, false)
		}
		return op(key, "$ne", bson.A(v.([]any)))
	case where.Near, where.Within:
		area := v.(where.Area)
		cond := inBox(key, area.Outer)
		if area.Inner != nil {
			cond = and([]bson.D{cond, op(key, "$not", inBox(key, *area.Inner)[0].Value)})
		}
		return cond
	}
	return never
}

func inBox(key string, b where.Box) bson.D {
	box := bson.A{bson.A{b.MinLng, b.MinLat}, bson.A{b.MaxLng, b.MaxLat}}
	return op(key, "$geoWithin", bson.D{{Key: "$box", Value: box}})
}

func relationCond(key string, polymorphic bool, o where.Operator, v any) bson.D {
	idKey := key
	if polymorphic {
		idKey = key + ".value"
	}
	eq := func(r document.Relationship) bson.D {
		if polymorphic && r.RelationTo != "" {
			return and([]bson.D{
				{{Key: key + ".relationTo", Value: r.RelationTo}},
				{{Key: idKey, Value: r.Value}},
			})
		}
		return bson.D{{Key: idKey, Value: r.Value}}
	}
	anyOf := func(items []any) bson.D {
		parts := make([]bson.D, len(items))
		for i, item := range items {
			parts[i] = eq(item.(document.Relationship))
		}
		return or(parts)
	}

	switch o {
	case where.Exists:
		return isNull(idKey, !v.(bool))
	case where.Equals:
		if v == nil {
			return isNull(idKey, true)
		}
		return eq(v.(document.Relationship))
	case where.NotEquals:
		if v == nil {
			return isNull(idKey, false)
		}
		return bson.D{{Key: "$nor", Value: bson.A{eq(v.(document.Relationship))}}}
	case where.In:
		return anyOf(v.([]any))
	case where.NotIn:
		items := v.([]any)
		if len(items) == 0 {
			return always
		}
		return bson.D{{Key: "$nor", Value: bson.A{anyOf(items)}}}
	}
	return never
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func and(parts []bson.D) bson.D {
	switch len(parts) {
	case 0:
		return always
	case 1:
		return parts[0]
	}
	a := make(bson.A, len(parts))
	for i, p := range parts {
		a[i] = p
	}
	return bson.D{{Key: "$and", Value: a}}
}

func or(parts []bson.D) bson.D {
	switch len(parts) {
	case 0:
		return never
	case 1:
		return parts[0]
	}
	a := make(bson.A, len(parts))
	for i, p := range parts {
		a[i] = p
	}
	return bson.D{{Key: "$or", Value: a}}
}
