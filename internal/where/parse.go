package where

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/folio/internal/dberr"
)

const (
	keyAnd = "and"
	keyOr  = "or"
)

// Parse converts the JSON shape of a where clause into an Expr:
//
//	{"title": {"equals": "Hello"}, "or": [{"views": {"greater_than": 10}}, ...]}
//
// Sibling keys are combined with And. Field keys are processed in sorted
// order, followed by "and" then "or", so equal inputs produce equal trees.
// A nil or empty map parses to an empty And.
func Parse(raw map[string]any) (Expr, error) {
	if len(raw) == 0 {
		return And{}, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if k != keyAnd && k != keyOr {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var exprs []Expr
	for _, path := range keys {
		conds, err := parseConditions(path, raw[path])
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, conds...)
	}

	for _, key := range []string{keyAnd, keyOr} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		children, err := parseList(key, v)
		if err != nil {
			return nil, err
		}
		if key == keyAnd {
			exprs = append(exprs, And{Exprs: children})
		} else {
			exprs = append(exprs, Or{Exprs: children})
		}
	}

	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return And{Exprs: exprs}, nil
}

// ParseJSON decodes and parses a JSON where clause. Empty input parses to
// an empty And.
func ParseJSON(data []byte) (Expr, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return And{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode where: %w", err)
	}
	return Parse(raw)
}

func parseList(key string, v any) ([]Expr, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, dberr.InvalidValue(key, "%q must be a list of where clauses", key)
	}
	out := make([]Expr, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, dberr.InvalidValue(key, "%s[%d] must be an object", key, i)
		}
		child, err := Parse(m)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func parseConditions(path string, v any) ([]Expr, error) {
	ops, ok := v.(map[string]any)
	if !ok || len(ops) == 0 {
		return nil, dberr.InvalidValue(path, "expected an object of operator to value")
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Expr, 0, len(names))
	for _, name := range names {
		op, ok := ParseOperator(name)
		if !ok {
			return nil, &dberr.Error{
				Code:    dberr.CodeInvalidOperator,
				Field:   path,
				Message: fmt.Sprintf("unknown operator %q", name),
			}
		}
		out = append(out, Condition{Path: path, Operator: op, Value: ops[name]})
	}
	return out, nil
}
