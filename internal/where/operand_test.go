package where

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
)

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(schema.KindText, Like))
	assert.True(t, Allowed(schema.KindDate, GreaterThan))
	assert.True(t, Allowed(schema.KindPoint, Near))
	assert.True(t, Allowed(schema.KindRelationship, In))

	assert.False(t, Allowed(schema.KindNumber, Contains))
	assert.False(t, Allowed(schema.KindCheckbox, GreaterThan))
	assert.False(t, Allowed(schema.KindJSON, Equals))
	assert.False(t, Allowed(schema.KindPoint, In))
	assert.False(t, Allowed(schema.KindGroup, Exists))
	assert.False(t, Allowed(schema.KindArray, Equals))
}

func TestBind(t *testing.T) {
	number := &schema.Field{Name: "views", Kind: schema.KindNumber}
	date := &schema.Field{Name: "at", Kind: schema.KindDate}
	rel := &schema.Field{Name: "related", Kind: schema.KindRelationship, RelationTo: []string{"users", "pages"}}

	tests := []struct {
		name  string
		field *schema.Field
		op    Operator
		raw   any
		want  any
	}{
		{"numeric string", number, GreaterThan, "42", float64(42)},
		{"equals null", number, Equals, nil, nil},
		{"exists from string", number, Exists, "false", false},
		{"in list", number, In, []any{"1", float64(2)}, []any{float64(1), float64(2)}},
		{"date", date, LessThan, "2024-01-02", "2024-01-02T00:00:00.000Z"},
		{"like words", &schema.Field{Kind: schema.KindText}, Like, " Big  Red ", []string{"big", "red"}},
		{"polymorphic bare id", rel, Equals, "u1", document.Relationship{Value: "u1"}},
		{"polymorphic with target", rel, NotEquals,
			map[string]any{"relationTo": "pages", "value": "p1"},
			document.Relationship{RelationTo: "pages", Value: "p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bind("f", tt.field, tt.op, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBind_Errors(t *testing.T) {
	number := &schema.Field{Name: "views", Kind: schema.KindNumber}
	point := &schema.Field{Name: "location", Kind: schema.KindPoint}

	_, err := Bind("views", number, GreaterThan, "many")
	assert.Equal(t, dberr.CodeInvalidValue, dberr.CodeOf(err))

	_, err = Bind("views", number, GreaterThan, nil)
	assert.Equal(t, dberr.CodeInvalidValue, dberr.CodeOf(err))

	_, err = Bind("views", number, Near, "1,2,3")
	assert.Equal(t, dberr.CodeInvalidOperator, dberr.CodeOf(err))
	assert.Equal(t, "views", dberr.FieldOf(err))

	_, err = Bind("location", point, Near, "1,2")
	assert.Equal(t, dberr.CodeInvalidValue, dberr.CodeOf(err))

	_, err = Bind("location", point, Within, []any{[]any{float64(5), float64(5)}, []any{float64(1), float64(1)}})
	assert.Equal(t, dberr.CodeInvalidValue, dberr.CodeOf(err))
}

func TestBind_Near(t *testing.T) {
	point := &schema.Field{Name: "location", Kind: schema.KindPoint}

	got, err := Bind("location", point, Near, "10,0,111320,55660")
	require.NoError(t, err)

	area := got.(Area)
	assert.InDelta(t, 9, area.Outer.MinLng, 1e-9)
	assert.InDelta(t, 11, area.Outer.MaxLng, 1e-9)
	assert.InDelta(t, -1, area.Outer.MinLat, 1e-9)
	assert.InDelta(t, 1, area.Outer.MaxLat, 1e-9)
	require.NotNil(t, area.Inner)
	assert.InDelta(t, 0.5, area.Inner.MaxLat, 1e-9)

	_, err = Bind("location", point, Near, []any{float64(0), float64(45)})
	assert.Equal(t, dberr.CodeInvalidValue, dberr.CodeOf(err))
}
