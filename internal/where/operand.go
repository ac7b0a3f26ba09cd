package where

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
)

// Box is an axis-aligned lng/lat rectangle.
type Box struct {
	MinLng, MinLat, MaxLng, MaxLat float64
}

// Area is the operand of near and within. Points inside Outer and outside
// Inner (when set) match.
type Area struct {
	Outer Box
	Inner *Box
}

const metersPerDegree = 111320.0

// Allowed reports whether op is defined for fields of kind.
func Allowed(kind schema.Kind, op Operator) bool {
	switch kind {
	case schema.KindText, schema.KindSelect:
		return !op.IsGeo()
	case schema.KindNumber, schema.KindDate:
		return !op.IsGeo() && !op.IsText()
	case schema.KindCheckbox, schema.KindRelationship:
		return op == Equals || op == NotEquals || op.IsList() || op == Exists
	case schema.KindJSON:
		return op == Exists
	case schema.KindPoint:
		return op == Equals || op == NotEquals || op == Exists || op.IsGeo()
	}
	return false
}

// Bind checks op against the field kind and coerces the raw operand.
//
// The result depends on the operator:
//
//	exists                  bool
//	equals, not_equals      coerced value, or nil to test for absence
//	comparisons             coerced value
//	in, not_in              []any of coerced values
//	like                    []string of lower-cased words
//	contains                lower-cased string
//	near, within            Area
//
// Relationship values coerce to document.Relationship; a bare id on a
// polymorphic field leaves RelationTo empty.
func Bind(path string, f *schema.Field, op Operator, raw any) (any, error) {
	if !Allowed(f.Kind, op) {
		return nil, dberr.InvalidOperator(path, string(op), string(f.Kind))
	}

	switch {
	case op == Exists:
		b, err := document.Coerce(schema.KindCheckbox, raw)
		if err != nil {
			return nil, dberr.InvalidValue(path, "exists: %v", err)
		}
		return b, nil

	case op == Equals || op == NotEquals:
		if raw == nil {
			return nil, nil
		}
		return scalar(path, f, raw)

	case op.IsComparison():
		if raw == nil {
			return nil, dberr.InvalidValue(path, "%s requires a value", op)
		}
		return scalar(path, f, raw)

	case op.IsList():
		items, err := list(raw)
		if err != nil {
			return nil, dberr.InvalidValue(path, "%s: %v", op, err)
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			v, err := scalar(path, f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case op == Like:
		s, ok := raw.(string)
		if !ok {
			return nil, dberr.InvalidValue(path, "like requires a string")
		}
		return strings.Fields(strings.ToLower(s)), nil

	case op == Contains:
		s, ok := raw.(string)
		if !ok {
			return nil, dberr.InvalidValue(path, "contains requires a string")
		}
		return strings.ToLower(s), nil

	case op == Near:
		return near(path, raw)

	case op == Within:
		return within(path, raw)
	}
	return nil, dberr.InvalidOperator(path, string(op), string(f.Kind))
}

func scalar(path string, f *schema.Field, v any) (any, error) {
	if f.Kind == schema.KindRelationship {
		rel, err := document.CoerceRelationship(f, v, true)
		if err != nil {
			return nil, dberr.InvalidValue(path, "%v", err)
		}
		return rel, nil
	}
	out, err := document.Coerce(f.Kind, v)
	if err != nil {
		return nil, dberr.InvalidValue(path, "%v", err)
	}
	return out, nil
}

// list accepts a JSON array or a comma-separated string.
func list(v any) ([]any, error) {
	switch val := v.(type) {
	case []any:
		return val, nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case string:
		if val == "" {
			return nil, nil
		}
		var out []any
		for _, s := range strings.Split(val, ",") {
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

// near parses "lng,lat,maxDistance[,minDistance]" (meters) or the same
// numbers as a list, and approximates the circle by its bounding box.
func near(path string, raw any) (any, error) {
	items, err := list(raw)
	if err != nil || len(items) < 3 || len(items) > 4 {
		return nil, dberr.InvalidValue(path, "near requires lng,lat,maxDistance[,minDistance]")
	}
	nums := make([]float64, len(items))
	for i, item := range items {
		n, err := document.ToNumber(item)
		if err != nil {
			return nil, dberr.InvalidValue(path, "near: %v", err)
		}
		nums[i] = n
	}
	lng, lat := nums[0], nums[1]
	if _, err := document.ToPoint([]any{lng, lat}); err != nil {
		return nil, dberr.InvalidValue(path, "near: %v", err)
	}
	if nums[2] < 0 {
		return nil, dberr.InvalidValue(path, "near: distance must not be negative")
	}

	area := Area{Outer: boxAround(lng, lat, nums[2])}
	if len(nums) == 4 && nums[3] > 0 {
		inner := boxAround(lng, lat, nums[3])
		area.Inner = &inner
	}
	return area, nil
}

func boxAround(lng, lat, meters float64) Box {
	dLat := meters / metersPerDegree
	dLng := 180.0
	if c := math.Cos(lat * math.Pi / 180); c > 1e-9 {
		dLng = math.Min(180, meters/(metersPerDegree*c))
	}
	return Box{
		MinLng: math.Max(-180, lng-dLng),
		MinLat: math.Max(-90, lat-dLat),
		MaxLng: math.Min(180, lng+dLng),
		MaxLat: math.Min(90, lat+dLat),
	}
}

// within parses [[minLng, minLat], [maxLng, maxLat]].
func within(path string, raw any) (any, error) {
	corners, ok := raw.([]any)
	if !ok || len(corners) != 2 {
		return nil, dberr.InvalidValue(path, "within requires [[minLng, minLat], [maxLng, maxLat]]")
	}
	lo, err := document.ToPoint(corners[0])
	if err != nil {
		return nil, dberr.InvalidValue(path, "within: %v", err)
	}
	hi, err := document.ToPoint(corners[1])
	if err != nil {
		return nil, dberr.InvalidValue(path, "within: %v", err)
	}
	box := Box{
		MinLng: lo[0].(float64), MinLat: lo[1].(float64),
		MaxLng: hi[0].(float64), MaxLat: hi[1].(float64),
	}
	if box.MinLng > box.MaxLng || box.MinLat > box.MaxLat {
		return nil, dberr.InvalidValue(path, "within: corners are not ordered")
	}
	return Area{Outer: box}, nil
}
