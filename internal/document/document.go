// Package document holds the logical document: the externally visible record
// shape matching the declared field schema, and the pure transforms every
// backend shares.
//
// Values inside a Document use JSON types only: string, float64, bool, nil,
// []any and map[string]any. Dates are strings in TimeLayout, points are
// []any{lng, lat}, single-target relationships are id strings and
// polymorphic ones are {"relationTo", "value"} maps.
//
// Localized fields have two forms. In locale-scoped form (what callers read
// and write for one locale) the field holds a plain value. In all-locales
// form the field holds a map of locale code to value. Assemblers always
// produce all-locales form; Localize reduces it for the requested locale.
package document

import (
	"time"
)

// Document is a logical document.
type Document = map[string]any

// TimeLayout is the storage and wire format of date values: UTC with
// millisecond precision, so lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime formats t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Clone deep-copies a JSON-typed value.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// CloneDoc deep-copies a document. A nil document clones to nil.
func CloneDoc(d Document) Document {
	if d == nil {
		return nil
	}
	return Clone(d).(map[string]any)
}

// ID returns the string id of d, or "".
func ID(d Document) string {
	id, _ := d["id"].(string)
	return id
}
