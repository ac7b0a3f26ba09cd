package document

import (
	"github.com/roach88/folio/internal/schema"
)

// Lift converts a normalized locale-scoped document into all-locales form:
// every localized value v becomes {locale: v}. With schema.AllLocales the
// document is already in that form and is returned unchanged.
func Lift(fields []*schema.Field, doc Document, locale string) Document {
	if locale == schema.AllLocales || doc == nil {
		return doc
	}
	return liftObject(fields, doc, locale)
}

func liftObject(fields []*schema.Field, obj map[string]any, locale string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = liftValue(f, v, locale)
	}
	return out
}

func liftValue(f *schema.Field, v any, locale string) any {
	if f.Localized {
		return map[string]any{locale: v}
	}
	return mapChildren(f, v, func(fields []*schema.Field, m map[string]any) any {
		return liftObject(fields, m, locale)
	})
}

// Localize reduces an all-locales document for a locale-scoped read.
//
// Each localized value resolves to its locale entry, else the fallback
// locale entry, else the field is removed. The chain is the same for every
// backend. With schema.AllLocales the locale maps are kept. An empty
// fallback disables fallback.
func Localize(fields []*schema.Field, doc Document, locale, fallback string) Document {
	if doc == nil {
		return nil
	}
	return localizeObject(fields, doc, locale, fallback)
}

func localizeObject(fields []*schema.Field, obj map[string]any, locale, fallback string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}
		if !f.Localized {
			out[f.Name] = mapChildren(f, v, func(fields []*schema.Field, m map[string]any) any {
				return localizeObject(fields, m, locale, fallback)
			})
			continue
		}

		values, isMap := v.(map[string]any)
		if !isMap {
			continue
		}
		if locale == schema.AllLocales {
			continue
		}
		if lv, ok := values[locale]; ok && lv != nil {
			out[f.Name] = lv
		} else if lv, ok := values[fallback]; ok && lv != nil && fallback != "" {
			out[f.Name] = lv
		} else {
			delete(out, f.Name)
		}
	}
	return out
}

// Merge applies patch to base. Both are in all-locales form. Localized
// values merge per locale (a nil entry removes the locale), groups merge
// recursively and every other field, arrays and blocks included, is
// replaced. Neither input is modified.
func Merge(fields []*schema.Field, base, patch Document) Document {
	if base == nil {
		base = Document{}
	}
	return mergeObject(fields, CloneDoc(base), patch)
}

func mergeObject(fields []*schema.Field, base, patch map[string]any) map[string]any {
	for _, f := range fields {
		pv, ok := patch[f.Name]
		if !ok {
			continue
		}
		switch {
		case pv == nil:
			base[f.Name] = nil
		case f.Localized:
			merged, _ := base[f.Name].(map[string]any)
			if merged == nil {
				merged = make(map[string]any)
			}
			pm, _ := pv.(map[string]any)
			for locale, lv := range pm {
				if lv == nil {
					delete(merged, locale)
				} else {
					merged[locale] = Clone(lv)
				}
			}
			base[f.Name] = merged
		case f.Kind == schema.KindGroup && pv != nil:
			bm, _ := base[f.Name].(map[string]any)
			if bm == nil {
				bm = make(map[string]any)
			}
			pm, _ := pv.(map[string]any)
			base[f.Name] = mergeObject(f.Fields, bm, pm)
		default:
			base[f.Name] = Clone(pv)
		}
	}
	return base
}

// Carry keeps the other locales of replaced elements. patch is a lifted
// locale-scoped update and stored the current document, both in
// all-locales form. Every array or blocks element in patch whose id matches
// a stored element (and, for blocks, its blockType) receives the stored
// entries of its localized fields for every locale except locale. patch is
// modified and returned.
func Carry(fields []*schema.Field, stored, patch Document, locale string) Document {
	if locale == schema.AllLocales || stored == nil || patch == nil {
		return patch
	}
	carryPatch(fields, stored, patch, locale)
	return patch
}

// HasElements reports whether doc supplies an array or blocks field, at the
// root or inside a group.
func HasElements(fields []*schema.Field, doc map[string]any) bool {
	for _, f := range fields {
		v, ok := doc[f.Name]
		if !ok || v == nil || f.Localized {
			continue
		}
		switch f.Kind {
		case schema.KindArray, schema.KindBlocks:
			return true
		case schema.KindGroup:
			if m, ok := v.(map[string]any); ok && HasElements(f.Fields, m) {
				return true
			}
		}
	}
	return false
}

// carryPatch walks the supplied fields only; localized fields outside
// elements are merged per locale by the backend.
func carryPatch(fields []*schema.Field, stored, patch map[string]any, locale string) {
	for _, f := range fields {
		pv, ok := patch[f.Name]
		if !ok || pv == nil || f.Localized {
			continue
		}
		switch f.Kind {
		case schema.KindGroup:
			sm, _ := stored[f.Name].(map[string]any)
			pm, _ := pv.(map[string]any)
			if sm != nil && pm != nil {
				carryPatch(f.Fields, sm, pm, locale)
			}
		case schema.KindArray, schema.KindBlocks:
			carryElements(f, stored[f.Name], pv, locale)
		}
	}
}

func carryElements(f *schema.Field, stored, patch any, locale string) {
	prev := make(map[string]map[string]any)
	items, _ := stored.([]any)
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if id, _ := m[schema.FieldID].(string); id != "" {
				prev[id] = m
			}
		}
	}
	if len(prev) == 0 {
		return
	}

	items, _ = patch.([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m[schema.FieldID].(string)
		old := prev[id]
		if old == nil {
			continue
		}
		fields := f.Fields
		if f.Kind == schema.KindBlocks {
			slug, _ := m[schema.FieldBlockType].(string)
			if was, _ := old[schema.FieldBlockType].(string); was != slug || f.Block(slug) == nil {
				continue
			}
			fields = f.Block(slug).Fields
		}
		carryElement(fields, old, m, locale)
	}
}

// carryElement considers every field of a matched element, supplied or
// not, since the element as a whole is replaced.
func carryElement(fields []*schema.Field, stored, patch map[string]any, locale string) {
	for _, f := range fields {
		sv := stored[f.Name]
		if sv == nil {
			continue
		}
		pv, supplied := patch[f.Name]
		if supplied && pv == nil {
			continue
		}
		switch {
		case f.Localized:
			sm, _ := sv.(map[string]any)
			pm, _ := pv.(map[string]any)
			out := make(map[string]any, len(sm)+len(pm))
			for loc, v := range sm {
				if loc != locale && v != nil {
					out[loc] = Clone(v)
				}
			}
			for loc, v := range pm {
				if v != nil {
					out[loc] = v
				}
			}
			if len(out) > 0 {
				patch[f.Name] = out
			}
		case f.Kind == schema.KindGroup:
			sm, _ := sv.(map[string]any)
			pm, _ := pv.(map[string]any)
			if sm == nil {
				continue
			}
			if pm == nil {
				pm = make(map[string]any)
			}
			carryElement(f.Fields, sm, pm, locale)
			if len(pm) > 0 {
				patch[f.Name] = pm
			}
		case f.Kind == schema.KindArray || f.Kind == schema.KindBlocks:
			if supplied {
				carryElements(f, sv, pv, locale)
			}
		}
	}
}

// Prune removes everything that is not part of the logical shape: keys
// outside the schema, nil values, empty arrays, empty groups and empty
// locale maps. The id key is kept at the root and in elements; blockType is
// kept in blocks elements.
func Prune(fields []*schema.Field, doc Document) Document {
	if doc == nil {
		return nil
	}
	out := pruneObject(fields, doc, false)
	if id, ok := doc[schema.FieldID]; ok && id != nil {
		out[schema.FieldID] = id
	}
	return out
}

func pruneObject(fields []*schema.Field, obj map[string]any, element bool) map[string]any {
	out := make(map[string]any)
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			continue
		}
		if pv, keep := pruneValue(f, v); keep {
			out[f.Name] = pv
		}
	}
	if element {
		if id, ok := obj[schema.FieldID]; ok && id != nil {
			out[schema.FieldID] = id
		}
	}
	return out
}

func pruneValue(f *schema.Field, v any) (any, bool) {
	if f.Localized {
		m, ok := v.(map[string]any)
		if !ok {
			return v, true
		}
		out := make(map[string]any)
		for locale, lv := range m {
			if lv != nil {
				out[locale] = lv
			}
		}
		return out, len(out) > 0
	}

	switch f.Kind {
	case schema.KindGroup:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		out := pruneObject(f.Fields, m, false)
		return out, len(out) > 0
	case schema.KindArray:
		items, _ := v.([]any)
		out := make([]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, pruneObject(f.Fields, m, true))
			}
		}
		return out, len(out) > 0
	case schema.KindBlocks:
		items, _ := v.([]any)
		out := make([]any, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			slug, _ := m[schema.FieldBlockType].(string)
			block := f.Block(slug)
			if block == nil {
				continue
			}
			el := pruneObject(block.Fields, m, true)
			el[schema.FieldBlockType] = slug
			out = append(out, el)
		}
		return out, len(out) > 0
	}
	return v, true
}

// mapChildren applies fn to the nested objects of group, array and blocks
// values, returning other values unchanged.
func mapChildren(f *schema.Field, v any, fn func([]*schema.Field, map[string]any) any) any {
	switch f.Kind {
	case schema.KindGroup:
		if m, ok := v.(map[string]any); ok {
			return fn(f.Fields, m)
		}
	case schema.KindArray:
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				if m, ok := item.(map[string]any); ok {
					out[i] = fn(f.Fields, m)
				} else {
					out[i] = item
				}
			}
			return out
		}
	case schema.KindBlocks:
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					out[i] = item
					continue
				}
				slug, _ := m[schema.FieldBlockType].(string)
				if block := f.Block(slug); block != nil {
					out[i] = fn(block.Fields, m)
				} else {
					out[i] = m
				}
			}
			return out
		}
	}
	return v
}
