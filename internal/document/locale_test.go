package document

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/folio/internal/schema"
)

func TestLift(t *testing.T) {
	doc := Document{
		"title": "Hello",
		"views": float64(1),
		"items": []any{map[string]any{"label": "a", "caption": "c", "id": "e1"}},
	}

	lifted := Lift(testFields(), doc, "en")

	assert.Equal(t, Document{
		"title": map[string]any{"en": "Hello"},
		"views": float64(1),
		"items": []any{map[string]any{"label": "a", "caption": map[string]any{"en": "c"}, "id": "e1"}},
	}, lifted)

	// input untouched
	assert.Equal(t, "Hello", doc["title"])
	assert.Equal(t, doc, Lift(testFields(), doc, schema.AllLocales))
}

func TestLocalize_Fallback(t *testing.T) {
	stored := Document{
		"title": map[string]any{"en": "Hello"},
		"items": []any{map[string]any{"label": "a", "caption": map[string]any{"fr": "Légende"}}},
	}

	tests := []struct {
		name     string
		locale   string
		fallback string
		want     Document
	}{
		{
			name:   "requested locale present",
			locale: "en",
			want: Document{
				"title": "Hello",
				"items": []any{map[string]any{"label": "a"}},
			},
		},
		{
			name:     "falls back",
			locale:   "fr",
			fallback: "en",
			want: Document{
				"title": "Hello",
				"items": []any{map[string]any{"label": "a", "caption": "Légende"}},
			},
		},
		{
			name:   "no fallback",
			locale: "fr",
			want: Document{
				"items": []any{map[string]any{"label": "a", "caption": "Légende"}},
			},
		},
		{
			name:   "all locales",
			locale: schema.AllLocales,
			want:   stored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Localize(testFields(), stored, tt.locale, tt.fallback))
		})
	}
}

func TestMerge(t *testing.T) {
	base := Document{
		"title": map[string]any{"en": "Hello", "fr": "Bonjour"},
		"meta":  map[string]any{"description": "d", "featured": true},
		"items": []any{map[string]any{"label": "a"}, map[string]any{"label": "b"}},
		"views": float64(3),
	}
	patch := Document{
		"title": map[string]any{"fr": nil, "en": "Hi"},
		"meta":  map[string]any{"featured": false},
		"items": []any{map[string]any{"label": "z"}},
	}

	merged := Merge(testFields(), base, patch)

	assert.Equal(t, Document{
		"title": map[string]any{"en": "Hi"},
		"meta":  map[string]any{"description": "d", "featured": false},
		"items": []any{map[string]any{"label": "z"}},
		"views": float64(3),
	}, merged)

	// base untouched
	assert.Equal(t, map[string]any{"en": "Hello", "fr": "Bonjour"}, base["title"])
	assert.Len(t, base["items"], 2)
}

func TestCarry(t *testing.T) {
	stored := Document{
		"title": map[string]any{"en": "Hello"},
		"items": []any{
			map[string]any{"id": "e1", "label": "a", "caption": map[string]any{"en": "A", "fr": "old"}},
			map[string]any{"id": "e2", "label": "b", "caption": map[string]any{"en": "B"}},
		},
	}
	patch := Document{
		"title": map[string]any{"fr": "Bonjour"},
		"items": []any{
			map[string]any{"id": "e1", "label": "a", "caption": map[string]any{"fr": "new"}},
			map[string]any{"id": "e2", "label": "b"},
			map[string]any{"id": "e9", "label": "z", "caption": map[string]any{"fr": "Z"}},
		},
	}

	got := Carry(testFields(), stored, patch, "fr")

	assert.Equal(t, Document{
		"title": map[string]any{"fr": "Bonjour"},
		"items": []any{
			map[string]any{"id": "e1", "label": "a", "caption": map[string]any{"en": "A", "fr": "new"}},
			map[string]any{"id": "e2", "label": "b", "caption": map[string]any{"en": "B"}},
			map[string]any{"id": "e9", "label": "z", "caption": map[string]any{"fr": "Z"}},
		},
	}, got)
	assert.Equal(t, map[string]any{"en": "A", "fr": "old"}, stored["items"].([]any)[0].(map[string]any)["caption"])
}

func TestCarry_Unchanged(t *testing.T) {
	stored := Document{"items": []any{map[string]any{"id": "e1", "caption": map[string]any{"en": "A"}}}}
	patch := func() Document {
		return Document{"items": []any{map[string]any{"id": "e1", "caption": map[string]any{"fr": "F"}}}}
	}

	assert.Equal(t, patch(), Carry(testFields(), stored, patch(), schema.AllLocales))
	assert.Equal(t, patch(), Carry(testFields(), nil, patch(), "fr"))

	blocks := Carry(testFields(),
		Document{"layout": []any{map[string]any{"id": "b1", "blockType": "cta", "heading": "h"}}},
		Document{"layout": []any{map[string]any{"id": "b1", "blockType": "quote", "text": "t"}}}, "fr")
	assert.Equal(t, []any{map[string]any{"id": "b1", "blockType": "quote", "text": "t"}}, blocks["layout"])
}

func TestHasElements(t *testing.T) {
	assert.True(t, HasElements(testFields(), Document{"items": []any{}}))
	assert.True(t, HasElements(testFields(), Document{"layout": []any{}}))
	assert.False(t, HasElements(testFields(), Document{"title": map[string]any{"fr": "x"}, "views": float64(1)}))
	assert.False(t, HasElements(testFields(), Document{"items": nil}))
}

func TestPrune(t *testing.T) {
	doc := Document{
		"id":      "p1",
		"_id":     "p1",
		"_order":  float64(0),
		"title":   map[string]any{"en": nil},
		"views":   nil,
		"meta":    map[string]any{"description": nil},
		"items":   []any{},
		"author":  "u1",
		"unknown": "x",
		"layout": []any{
			map[string]any{"blockType": "quote", "text": "q", "id": "b1", "_parent_id": "p1"},
			map[string]any{"blockType": "gone", "text": "q"},
		},
	}

	assert.Equal(t, Document{
		"id":     "p1",
		"author": "u1",
		"layout": []any{
			map[string]any{"blockType": "quote", "text": "q", "id": "b1"},
		},
	}, Prune(testFields(), doc))
}
