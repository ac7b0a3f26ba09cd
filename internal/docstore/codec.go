package docstore

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/querydoc"
	"github.com/roach88/folio/internal/schema"
)

// Disassemble converts a document in all-locales form to BSON in schema
// order with _id first. Null values are kept so Patch can unset them.
func (s *Store) Disassemble(coll *schema.Collection, doc document.Document) (bson.D, error) {
	out := bson.D{}
	if id, ok := doc[schema.FieldID]; ok && id != nil {
		out = append(out, bson.E{Key: querydoc.IDKey, Value: id})
	}
	fields, err := encodeObject(coll.Fields, doc, "")
	if err != nil {
		return nil, err
	}
	return append(out, fields...), nil
}

func encodeObject(fields []*schema.Field, obj map[string]any, path string) (bson.D, error) {
	var out bson.D
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}
		ev, err := encodeValue(f, v, join(path, f.Name))
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: f.Name, Value: ev})
	}
	return out, nil
}

func encodeValue(f *schema.Field, v any, path string) (any, error) {
	if v == nil {
		return nil, nil
	}
	if !f.Localized {
		return encodeLeaf(f, v, path)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: localized value must be a locale map, got %T", path, v)
	}
	out := bson.D{}
	for _, loc := range sortedKeys(m) {
		lv, err := encodeLeaf(f, m[loc], path)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: loc, Value: lv})
	}
	return out, nil
}

func encodeLeaf(f *schema.Field, v any, path string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case schema.KindGroup:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: group value must be an object, got %T", path, v)
		}
		d, err := encodeObject(f.Fields, m, path)
		if d == nil {
			d = bson.D{}
		}
		return d, err
	case schema.KindArray, schema.KindBlocks:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected an array, got %T", path, v)
		}
		out := bson.A{}
		for i, item := range items {
			el, err := encodeElement(f, item, fmt.Sprintf("%s.%d", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, el)
		}
		return out, nil
	case schema.KindRelationship:
		rel, err := document.CoerceRelationship(f, v, false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if f.Polymorphic() {
			return bson.D{{Key: "relationTo", Value: rel.RelationTo}, {Key: "value", Value: rel.Value}}, nil
		}
		return rel.Value, nil
	case schema.KindPoint:
		p, err := document.ToPoint(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return bson.A(p), nil
	case schema.KindJSON:
		return encodeJSON(v), nil
	}
	return v, nil
}

func encodeElement(f *schema.Field, item any, path string) (bson.D, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: element must be an object, got %T", path, item)
	}
	el := bson.D{}
	if id, ok := m[schema.FieldID]; ok && id != nil {
		el = append(el, bson.E{Key: schema.FieldID, Value: id})
	}
	fields := f.Fields
	if f.Kind == schema.KindBlocks {
		slug, _ := m[schema.FieldBlockType].(string)
		block := f.Block(slug)
		if block == nil {
			return nil, fmt.Errorf("%s: unknown block type %q", path, slug)
		}
		el = append(el, bson.E{Key: schema.FieldBlockType, Value: slug})
		fields = block.Fields
	}
	d, err := encodeObject(fields, m, path)
	if err != nil {
		return nil, err
	}
	return append(el, d...), nil
}

// encodeJSON stores objects with sorted keys so equal values encode
// identically.
func encodeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(bson.D, 0, len(val))
		for _, k := range sortedKeys(val) {
			out = append(out, bson.E{Key: k, Value: encodeJSON(val[k])})
		}
		return out
	case []any:
		out := make(bson.A, len(val))
		for i, e := range val {
			out[i] = encodeJSON(e)
		}
		return out
	}
	return v
}

// Assemble converts a stored document to all-locales form.
func (s *Store) Assemble(coll *schema.Collection, raw bson.D) (document.Document, error) {
	m, ok := decodeValue(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: stored document is not an object", coll.Slug)
	}
	id, ok := m[querydoc.IDKey]
	if !ok {
		return nil, fmt.Errorf("%s: stored document has no _id", coll.Slug)
	}
	delete(m, querydoc.IDKey)
	m[schema.FieldID] = id
	doc := document.Prune(coll.Fields, m)
	if err := normalizeJSONFields(coll.Fields, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// decodeValue converts driver types to JSON types. Every number becomes
// float64.
func decodeValue(v any) any {
	switch val := v.(type) {
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = decodeValue(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = decodeValue(e)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = decodeValue(e)
		}
		return out
	case []any:
		return decodeValue(primitive.A(val))
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	}
	return v
}

// normalizeJSONFields re-normalizes json values read from storage, in
// place.
func normalizeJSONFields(fields []*schema.Field, obj map[string]any) error {
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}
		switch {
		case f.Kind == schema.KindJSON && !f.Localized:
			nv, err := document.NormalizeJSON(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			obj[f.Name] = nv
		case f.Kind == schema.KindGroup && !f.Localized:
			if m, ok := v.(map[string]any); ok {
				if err := normalizeJSONFields(f.Fields, m); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// compact drops nulls, empty locale maps, empty groups and empty arrays
// from an encoded document.
func compact(fields []*schema.Field, d bson.D) bson.D {
	out := make(bson.D, 0, len(d))
	for _, e := range d {
		if e.Value == nil {
			continue
		}
		if f := schema.Lookup(fields, e.Key); f != nil {
			e.Value = compactValue(f, e.Value)
			if e.Value == nil {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func compactValue(f *schema.Field, v any) any {
	if f.Localized {
		d, ok := v.(bson.D)
		if !ok {
			return v
		}
		out := bson.D{}
		for _, e := range d {
			if lv := compactLeaf(f, e.Value); lv != nil {
				out = append(out, bson.E{Key: e.Key, Value: lv})
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return compactLeaf(f, v)
}

func compactLeaf(f *schema.Field, v any) any {
	switch f.Kind {
	case schema.KindGroup:
		d, ok := v.(bson.D)
		if !ok {
			return v
		}
		if out := compact(f.Fields, d); len(out) > 0 {
			return out
		}
		return nil
	case schema.KindArray, schema.KindBlocks:
		items, ok := v.(bson.A)
		if !ok {
			return v
		}
		if len(items) == 0 {
			return nil
		}
		out := make(bson.A, len(items))
		for i, item := range items {
			el, ok := item.(bson.D)
			if !ok {
				out[i] = item
				continue
			}
			fields := f.Fields
			if f.Kind == schema.KindBlocks {
				if v, ok := lookup(el, schema.FieldBlockType); ok {
					slug, _ := v.(string)
					if b := f.Block(slug); b != nil {
						fields = b.Fields
					}
				}
			}
			out[i] = compact(fields, el)
		}
		return out
	}
	return v
}

// updateOps turns an encoded partial document into $set and $unset
// operations. Groups and locale maps merge key by key; arrays and blocks
// are replaced whole.
func updateOps(fields []*schema.Field, d bson.D, prefix string) (set, unset bson.D) {
	for _, e := range d {
		if prefix == "" && e.Key == querydoc.IDKey {
			continue
		}
		f := schema.Lookup(fields, e.Key)
		if f == nil {
			continue
		}
		path := join(prefix, e.Key)

		switch {
		case e.Value == nil:
			unset = append(unset, bson.E{Key: path, Value: ""})
		case f.Localized:
			locales, _ := e.Value.(bson.D)
			for _, le := range locales {
				lpath := path + "." + le.Key
				if lv := compactLeaf(f, le.Value); lv != nil {
					set = append(set, bson.E{Key: lpath, Value: lv})
				} else {
					unset = append(unset, bson.E{Key: lpath, Value: ""})
				}
			}
		case f.Kind == schema.KindGroup:
			sub, _ := e.Value.(bson.D)
			s, u := updateOps(f.Fields, sub, path)
			set = append(set, s...)
			unset = append(unset, u...)
		default:
			if v := compactLeaf(f, e.Value); v != nil {
				set = append(set, bson.E{Key: path, Value: v})
			} else {
				unset = append(unset, bson.E{Key: path, Value: ""})
			}
		}
	}
	return set, unset
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
