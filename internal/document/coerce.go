package document

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/folio/internal/schema"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Coerce converts v to the logical value of a scalar field kind.
//
// String operands are converted to the declared type ("42" to 42 for
// number fields, "true" to true for checkboxes). The returned error
// describes the failure and is wrapped by callers into INVALID_VALUE or
// VALIDATION_ERROR depending on where coercion happened.
func Coerce(kind schema.Kind, v any) (any, error) {
	switch kind {
	case schema.KindText, schema.KindSelect:
		return toText(v)
	case schema.KindNumber:
		return ToNumber(v)
	case schema.KindCheckbox:
		return toBool(v)
	case schema.KindDate:
		return ToDate(v)
	case schema.KindJSON:
		return toJSON(v)
	case schema.KindPoint:
		return ToPoint(v)
	default:
		return nil, fmt.Errorf("%s is not a scalar kind", kind)
	}
}

func toText(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	case json.Number:
		return val.String(), nil
	}
	return nil, fmt.Errorf("expected text, got %T", v)
}

// ToNumber converts numeric values and numeric strings to float64.
func ToNumber(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("number must be finite")
		}
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		return ToNumber(val.String())
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q is not a number", val)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", val)
		}
		return b, nil
	case float64:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	case int:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	case int64:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	}
	return nil, fmt.Errorf("expected boolean, got %v", v)
}

// ToDate converts a time.Time or a date string to TimeLayout.
func ToDate(v any) (string, error) {
	switch val := v.(type) {
	case time.Time:
		return FormatTime(val), nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return FormatTime(t), nil
			}
		}
		return "", fmt.Errorf("%q is not a date", val)
	}
	return "", fmt.Errorf("expected date, got %T", v)
}

// ParseTime parses a TimeLayout (or any accepted date) string.
func ParseTime(s string) (time.Time, error) {
	norm, err := ToDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(TimeLayout, norm)
}

// ToPoint converts [lng, lat], {"type":"Point","coordinates":[lng,lat]} or
// "lng,lat" to []any{lng, lat}.
func ToPoint(v any) ([]any, error) {
	var coords []any
	switch val := v.(type) {
	case []any:
		coords = val
	case []float64:
		for _, f := range val {
			coords = append(coords, f)
		}
	case map[string]any:
		if t, _ := val["type"].(string); t != "Point" {
			return nil, fmt.Errorf("expected GeoJSON Point")
		}
		c, ok := val["coordinates"].([]any)
		if !ok {
			return nil, fmt.Errorf("GeoJSON Point requires coordinates")
		}
		coords = c
	case string:
		for _, part := range strings.Split(val, ",") {
			coords = append(coords, part)
		}
	default:
		return nil, fmt.Errorf("expected point, got %T", v)
	}

	if len(coords) != 2 {
		return nil, fmt.Errorf("point requires exactly [lng, lat]")
	}
	lng, err := ToNumber(coords[0])
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	lat, err := ToNumber(coords[1])
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("point [%v, %v] is out of range", lng, lat)
	}
	return []any{lng, lat}, nil
}

// toJSON normalizes any JSON-compatible value. Numbers become float64.
func toJSON(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val, nil
	case int, int32, int64, float32, json.Number:
		return ToNumber(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			n, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			n, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T is not a JSON value", v)
}

// NormalizeJSON is toJSON for callers outside the package, used when
// reading JSON values back from storage.
func NormalizeJSON(v any) (any, error) {
	return toJSON(v)
}

// Relationship is a decoded relationship value.
type Relationship struct {
	RelationTo string
	Value      string
}

// CoerceRelationship converts a relationship value for field f.
//
// Single-target relationships accept an id string (or number) and return
// it as a string. Polymorphic relationships require {"relationTo", "value"}
// with a declared target. When loose is true a bare id is accepted for a
// polymorphic field and RelationTo is left empty; filters use this to match
// on the id alone.
func CoerceRelationship(f *schema.Field, v any, loose bool) (Relationship, error) {
	if m, ok := v.(map[string]any); ok {
		rt, _ := m["relationTo"].(string)
		if rt == "" || !contains(f.RelationTo, rt) {
			return Relationship{}, fmt.Errorf("relationTo must be one of %v", f.RelationTo)
		}
		id, err := toID(m["value"])
		if err != nil {
			return Relationship{}, err
		}
		return Relationship{RelationTo: rt, Value: id}, nil
	}

	id, err := toID(v)
	if err != nil {
		return Relationship{}, err
	}
	if f.Polymorphic() {
		if !loose {
			return Relationship{}, fmt.Errorf("polymorphic relationship requires {relationTo, value}")
		}
		return Relationship{Value: id}, nil
	}
	return Relationship{RelationTo: f.RelationTo[0], Value: id}, nil
}

// Logical returns the document form of the relationship.
func (r Relationship) Logical(f *schema.Field) any {
	if f.Polymorphic() {
		return map[string]any{"relationTo": r.RelationTo, "value": r.Value}
	}
	return r.Value
}

func toID(v any) (string, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "", fmt.Errorf("id must not be empty")
		}
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	}
	return "", fmt.Errorf("expected id, got %T", v)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
