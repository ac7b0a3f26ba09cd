package sqlstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqllayout"
)

// RowSet is the storage form of one document or one array/blocks element:
// a row of its table, its locale rows and its child rows.
//
// On writes, only present keys are written: a column missing from Row keeps
// its stored value, a locale missing from Locales keeps its stored row and
// a table missing from Children keeps its stored elements. A table present
// in Children is replaced as a whole.
type RowSet struct {
	Table    *sqllayout.Table
	Row      map[string]any
	Locales  map[string]map[string]any
	Children map[*sqllayout.Table][]*RowSet
}

func newRowSet(t *sqllayout.Table) *RowSet {
	return &RowSet{
		Table:    t,
		Row:      make(map[string]any),
		Locales:  make(map[string]map[string]any),
		Children: make(map[*sqllayout.Table][]*RowSet),
	}
}

func (rs *RowSet) locale(code string) map[string]any {
	row, ok := rs.Locales[code]
	if !ok {
		row = make(map[string]any)
		rs.Locales[code] = row
	}
	return row
}

// key returns the value other rows reference rs by.
func (rs *RowSet) key() string {
	k, _ := rs.Row[rs.Table.Key()].(string)
	return k
}

// Disassemble implements adapter.Backend. The document is in all-locales
// form and may be partial.
func (s *Store) Disassemble(coll *schema.Collection, doc document.Document) (*RowSet, error) {
	l, err := s.Layout(coll)
	if err != nil {
		return nil, err
	}
	rs := newRowSet(l.Root)
	if id := document.ID(doc); id != "" {
		rs.Row[sqllayout.ColID] = id
	}
	if err := s.fill(rs, coll.Fields, doc); err != nil {
		return nil, fmt.Errorf("disassemble %s: %w", coll.Slug, err)
	}
	return rs, nil
}

func (s *Store) fill(rs *RowSet, fields []*schema.Field, obj map[string]any) error {
	t := rs.Table
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}

		switch f.Kind {
		case schema.KindGroup:
			m, _ := v.(map[string]any)
			if m == nil {
				if err := s.clear(rs, f.Fields); err != nil {
					return err
				}
				continue
			}
			if err := s.fill(rs, f.Fields, m); err != nil {
				return err
			}

		case schema.KindArray:
			child := t.ChildrenFor(f)[0]
			items, _ := v.([]any)
			rows := make([]*RowSet, 0, len(items))
			for i, item := range items {
				m, _ := item.(map[string]any)
				el, err := s.element(child, f.Fields, m, i)
				if err != nil {
					return err
				}
				rows = append(rows, el)
			}
			rs.Children[child] = rows

		case schema.KindBlocks:
			for _, child := range t.ChildrenFor(f) {
				rs.Children[child] = []*RowSet{}
			}
			items, _ := v.([]any)
			for i, item := range items {
				m, _ := item.(map[string]any)
				slug, _ := m[schema.FieldBlockType].(string)
				block := f.Block(slug)
				if block == nil {
					return fmt.Errorf("%s.%d: unknown block type %q", f.Name, i, slug)
				}
				child := t.Child(f, block)
				el, err := s.element(child, block.Fields, m, i)
				if err != nil {
					return err
				}
				rs.Children[child] = append(rs.Children[child], el)
			}

		default:
			if err := s.scalar(rs, f, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) element(t *sqllayout.Table, fields []*schema.Field, m map[string]any, order int) (*RowSet, error) {
	el := newRowSet(t)
	el.Row[sqllayout.ColKey] = s.newKey()
	el.Row[sqllayout.ColID] = document.ID(m)
	el.Row[sqllayout.ColOrder] = order
	if err := s.fill(el, fields, m); err != nil {
		return nil, err
	}
	return el, nil
}

// clear sets every column under fields to NULL and empties nested arrays.
func (s *Store) clear(rs *RowSet, fields []*schema.Field) error {
	for _, f := range fields {
		switch f.Kind {
		case schema.KindGroup:
			if err := s.clear(rs, f.Fields); err != nil {
				return err
			}
		case schema.KindArray, schema.KindBlocks:
			for _, child := range rs.Table.ChildrenFor(f) {
				rs.Children[child] = []*RowSet{}
			}
		default:
			if err := s.scalar(rs, f, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// scalar stores a leaf value. A localized value is a locale map; a nil
// localized value clears every configured locale.
func (s *Store) scalar(rs *RowSet, f *schema.Field, v any) error {
	if !f.Localized {
		return s.columns(rs.Table, f, v, rs.Row)
	}
	if v == nil {
		for _, code := range s.cfg.Locales() {
			if err := s.columns(rs.Table, f, nil, rs.locale(code)); err != nil {
				return err
			}
		}
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: localized value must be a locale map, got %T", f.Name, v)
	}
	for code, lv := range m {
		if err := s.columns(rs.Table, f, lv, rs.locale(code)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) columns(t *sqllayout.Table, f *schema.Field, v any, row map[string]any) error {
	cols := t.ColumnsFor(f)
	if v == nil {
		for _, c := range cols {
			row[c.Name] = nil
		}
		return nil
	}

	switch f.Kind {
	case schema.KindRelationship:
		rel, err := document.CoerceRelationship(f, v, false)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		for _, c := range cols {
			if c.Part == sqllayout.PartRelationTo {
				row[c.Name] = rel.RelationTo
			} else {
				row[c.Name] = rel.Value
			}
		}
	case schema.KindPoint:
		p, err := document.ToPoint(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		for _, c := range cols {
			if c.Part == sqllayout.PartLng {
				row[c.Name] = p[0]
			} else {
				row[c.Name] = p[1]
			}
		}
	case schema.KindJSON:
		data, err := document.MarshalCanonical(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		row[cols[0].Name] = string(data)
	default:
		row[cols[0].Name] = v
	}
	return nil
}

// Assemble implements adapter.Backend.
func (s *Store) Assemble(coll *schema.Collection, rs *RowSet) (document.Document, error) {
	doc, err := s.object(rs, coll.Fields)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", coll.Slug, err)
	}
	if id, ok := text(rs.Row[sqllayout.ColID]); ok {
		doc[schema.FieldID] = id
	}
	return doc, nil
}

func (s *Store) object(rs *RowSet, fields []*schema.Field) (map[string]any, error) {
	t := rs.Table
	out := make(map[string]any)
	for _, f := range fields {
		switch f.Kind {
		case schema.KindGroup:
			m, err := s.object(rs, f.Fields)
			if err != nil {
				return nil, err
			}
			if len(m) > 0 {
				out[f.Name] = m
			}

		case schema.KindArray:
			child := t.ChildrenFor(f)[0]
			var items []any
			for _, el := range rs.Children[child] {
				m, err := s.elementObject(el, f.Fields)
				if err != nil {
					return nil, err
				}
				items = append(items, m)
			}
			if len(items) > 0 {
				out[f.Name] = items
			}

		case schema.KindBlocks:
			type ordered struct {
				order int64
				item  map[string]any
			}
			var all []ordered
			for _, child := range t.ChildrenFor(f) {
				for _, el := range rs.Children[child] {
					m, err := s.elementObject(el, child.Block.Fields)
					if err != nil {
						return nil, err
					}
					m[schema.FieldBlockType] = child.Block.Slug
					all = append(all, ordered{order: integer(el.Row[sqllayout.ColOrder]), item: m})
				}
			}
			sort.SliceStable(all, func(i, j int) bool { return all[i].order < all[j].order })
			if len(all) > 0 {
				items := make([]any, len(all))
				for i, o := range all {
					items[i] = o.item
				}
				out[f.Name] = items
			}

		default:
			if !f.Localized {
				v, err := s.value(t, f, rs.Row)
				if err != nil {
					return nil, err
				}
				if v != nil {
					out[f.Name] = v
				}
				continue
			}
			values := make(map[string]any)
			for code, row := range rs.Locales {
				v, err := s.value(t, f, row)
				if err != nil {
					return nil, err
				}
				if v != nil {
					values[code] = v
				}
			}
			if len(values) > 0 {
				out[f.Name] = values
			}
		}
	}
	return out, nil
}

func (s *Store) elementObject(el *RowSet, fields []*schema.Field) (map[string]any, error) {
	m, err := s.object(el, fields)
	if err != nil {
		return nil, err
	}
	if id, ok := text(el.Row[sqllayout.ColID]); ok && id != "" {
		m[schema.FieldID] = id
	}
	return m, nil
}

// value reads the logical value of f from a row; nil when absent.
func (s *Store) value(t *sqllayout.Table, f *schema.Field, row map[string]any) (any, error) {
	switch f.Kind {
	case schema.KindRelationship:
		id, ok := text(row[t.Column(f, sqllayout.PartValue).Name])
		if !ok {
			return nil, nil
		}
		rel := document.Relationship{Value: id, RelationTo: f.RelationTo[0]}
		if c := t.Column(f, sqllayout.PartRelationTo); c != nil {
			rel.RelationTo, _ = text(row[c.Name])
		}
		return rel.Logical(f), nil

	case schema.KindPoint:
		lng, okLng := number(row[t.Column(f, sqllayout.PartLng).Name])
		lat, okLat := number(row[t.Column(f, sqllayout.PartLat).Name])
		if !okLng || !okLat {
			return nil, nil
		}
		return []any{lng, lat}, nil
	}

	raw := row[t.Column(f, sqllayout.PartValue).Name]
	if raw == nil {
		return nil, nil
	}
	switch f.Kind {
	case schema.KindNumber:
		n, ok := number(raw)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected number %T", f.Name, raw)
		}
		return n, nil
	case schema.KindCheckbox:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
		return nil, fmt.Errorf("%s: unexpected boolean %T", f.Name, raw)
	case schema.KindJSON:
		data, _ := text(raw)
		var v any
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return document.NormalizeJSON(v)
	}
	str, ok := text(raw)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected text %T", f.Name, raw)
	}
	return str, nil
}

func text(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func integer(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
