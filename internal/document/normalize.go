package document

import (
	"fmt"
	"strconv"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/schema"
)

// NormalizeOptions controls write-path normalization.
type NormalizeOptions struct {
	// Create treats data as a complete document: defaults are applied and
	// required fields must be present. Otherwise data is a partial update
	// and absent fields are left out of the result.
	Create bool

	// SkipRequired disables required checks (draft saves).
	SkipRequired bool

	// Locale is the write locale, or schema.AllLocales when localized
	// values are supplied as locale-keyed maps.
	Locale string

	// Locales lists the configured locales, used to check locale-keyed maps.
	Locales []string

	// DefaultLocale receives localized default values in all-locales writes.
	DefaultLocale string

	// NewID generates ids for array and blocks elements that lack one.
	NewID func() string
}

// Normalize validates and coerces write data against a field tree.
//
// Unknown keys are dropped. Block elements are validated against the
// variant named by their blockType and keys outside that variant are
// dropped. Array and blocks values are complete replacements, so their
// elements are always normalized as complete documents. Groups follow the
// mode of their parent: in a partial update only the supplied children of
// a group are returned.
//
// Failures are VALIDATION_ERROR errors naming the offending path, such as
// "items.1.label".
func Normalize(fields []*schema.Field, data map[string]any, opts NormalizeOptions) (Document, error) {
	n := &normalizer{opts: opts}
	return n.object(fields, data, "", opts.Create)
}

type normalizer struct {
	opts NormalizeOptions
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func (n *normalizer) object(fields []*schema.Field, data map[string]any, path string, full bool) (map[string]any, error) {
	out := make(map[string]any)

	for _, f := range fields {
		fpath := join(path, f.Name)
		v, present := data[f.Name]

		if !present && full && f.DefaultValue != nil {
			v, present = n.defaultValue(f), true
		}
		if !present {
			if full && n.required(f) {
				return nil, dberr.Validation(fpath, "this field is required")
			}
			continue
		}
		if v == nil {
			if n.required(f) {
				return nil, dberr.Validation(fpath, "this field is required")
			}
			out[f.Name] = nil
			continue
		}

		val, err := n.value(f, v, fpath, full)
		if err != nil {
			return nil, err
		}
		out[f.Name] = val
	}

	return out, nil
}

func (n *normalizer) required(f *schema.Field) bool {
	return f.Required && !n.opts.SkipRequired
}

// defaultValue returns the default in the shape expected by value.
func (n *normalizer) defaultValue(f *schema.Field) any {
	v := Clone(f.DefaultValue)
	if f.Localized && n.opts.Locale == schema.AllLocales {
		return map[string]any{n.opts.DefaultLocale: v}
	}
	return v
}

func (n *normalizer) value(f *schema.Field, v any, path string, full bool) (any, error) {
	if f.Localized && n.opts.Locale == schema.AllLocales {
		return n.localized(f, v, path)
	}
	return n.single(f, v, path, full)
}

func (n *normalizer) localized(f *schema.Field, v any, path string) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, dberr.Validation(path, "localized value must be an object of locale to value")
	}
	out := make(map[string]any, len(m))
	for locale, lv := range m {
		if len(n.opts.Locales) > 0 && !contains(n.opts.Locales, locale) {
			return nil, dberr.Validation(path, fmt.Sprintf("unknown locale %q", locale))
		}
		if lv == nil {
			out[locale] = nil
			continue
		}
		val, err := n.single(f, lv, join(path, locale), true)
		if err != nil {
			return nil, err
		}
		out[locale] = val
	}
	if len(out) == 0 && n.required(f) {
		return nil, dberr.Validation(path, "this field is required")
	}
	return out, nil
}

func (n *normalizer) single(f *schema.Field, v any, path string, full bool) (any, error) {
	switch f.Kind {
	case schema.KindGroup:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, dberr.Validation(path, "expected an object")
		}
		return n.object(f.Fields, m, path, full)

	case schema.KindArray:
		items, err := elements(v, path)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			epath := join(path, strconv.Itoa(i))
			el, err := n.object(f.Fields, item, epath, true)
			if err != nil {
				return nil, err
			}
			el[schema.FieldID] = n.elementID(item)
			out[i] = el
		}
		return out, nil

	case schema.KindBlocks:
		items, err := elements(v, path)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			epath := join(path, strconv.Itoa(i))
			slug, _ := item[schema.FieldBlockType].(string)
			block := f.Block(slug)
			if block == nil {
				return nil, dberr.Validation(join(epath, schema.FieldBlockType), fmt.Sprintf("unknown block type %q", slug))
			}
			el, err := n.object(block.Fields, item, epath, true)
			if err != nil {
				return nil, err
			}
			el[schema.FieldID] = n.elementID(item)
			el[schema.FieldBlockType] = slug
			out[i] = el
		}
		return out, nil

	case schema.KindRelationship:
		rel, err := CoerceRelationship(f, v, false)
		if err != nil {
			return nil, dberr.Validation(path, err.Error())
		}
		return rel.Logical(f), nil

	case schema.KindSelect:
		val, err := Coerce(f.Kind, v)
		if err != nil {
			return nil, dberr.Validation(path, err.Error())
		}
		if !f.HasOption(val.(string)) {
			return nil, dberr.Validation(path, fmt.Sprintf("%q is not a valid option", val))
		}
		return val, nil

	default:
		val, err := Coerce(f.Kind, v)
		if err != nil {
			return nil, dberr.Validation(path, err.Error())
		}
		return val, nil
	}
}

func (n *normalizer) elementID(item map[string]any) string {
	if id, ok := item[schema.FieldID].(string); ok && id != "" {
		return id
	}
	if n.opts.NewID == nil {
		return ""
	}
	return n.opts.NewID()
}

func elements(v any, path string) ([]map[string]any, error) {
	switch val := v.(type) {
	case []map[string]any:
		return val, nil
	case []any:
		out := make([]map[string]any, len(val))
		for i, e := range val {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, dberr.Validation(join(path, strconv.Itoa(i)), "expected an object")
			}
			out[i] = m
		}
		return out, nil
	}
	return nil, dberr.Validation(path, "expected a list")
}
