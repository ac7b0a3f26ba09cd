package where

import (
	"sort"
	"strings"
)

// Expr is a node of a Where expression.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	whereNode()
}

// And matches when every child matches. An empty And matches everything.
type And struct {
	Exprs []Expr
}

// Or matches when any child matches. An empty Or matches nothing.
type Or struct {
	Exprs []Expr
}

// Condition compares the value at Path with Value using Operator.
type Condition struct {
	Path     string
	Operator Operator
	Value    any
}

func (And) whereNode()       {}
func (Or) whereNode()        {}
func (Condition) whereNode() {}

// Eq is shorthand for an equals condition.
func Eq(path string, value any) Condition {
	return Condition{Path: path, Operator: Equals, Value: value}
}

// All combines expressions with And, dropping nils and flattening a single
// remaining expression.
func All(exprs ...Expr) Expr {
	var kept []Expr
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return And{Exprs: kept}
}

// Walk visits every Condition of e in order. A nil e has no conditions.
func Walk(e Expr, fn func(Condition) error) error {
	switch n := e.(type) {
	case nil:
		return nil
	case And:
		for _, c := range n.Exprs {
			if err := Walk(c, fn); err != nil {
				return err
			}
		}
	case Or:
		for _, c := range n.Exprs {
			if err := Walk(c, fn); err != nil {
				return err
			}
		}
	case Condition:
		return fn(n)
	}
	return nil
}

// Rewrite returns a copy of e with every condition path mapped through fn.
func Rewrite(e Expr, fn func(path string) string) Expr {
	switch n := e.(type) {
	case And:
		out := make([]Expr, len(n.Exprs))
		for i, c := range n.Exprs {
			out[i] = Rewrite(c, fn)
		}
		return And{Exprs: out}
	case Or:
		out := make([]Expr, len(n.Exprs))
		for i, c := range n.Exprs {
			out[i] = Rewrite(c, fn)
		}
		return Or{Exprs: out}
	case Condition:
		n.Path = fn(n.Path)
		return n
	}
	return e
}

// Prefix rewrites every path to live under prefix, except the paths listed
// in rename which are replaced outright. Used to query version snapshots
// with the paths of the original collection.
func Prefix(e Expr, prefix string, rename map[string]string) Expr {
	return Rewrite(e, func(path string) string {
		if to, ok := rename[path]; ok {
			return to
		}
		return prefix + "." + path
	})
}

// Paths returns the distinct condition paths of e, sorted.
func Paths(e Expr) []string {
	seen := make(map[string]bool)
	_ = Walk(e, func(c Condition) error {
		seen[c.Path] = true
		return nil
	})
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SortKey orders find results by one field path.
type SortKey struct {
	Path string
	Desc bool
}

// ParseSort parses a comma-separated sort string such as "-createdAt,title".
// A leading "-" sorts descending.
func ParseSort(s string) []SortKey {
	var keys []SortKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			keys = append(keys, SortKey{Path: part[1:], Desc: true})
		} else {
			keys = append(keys, SortKey{Path: strings.TrimPrefix(part, "+")})
		}
	}
	return keys
}

// FormatSort formats keys back into sort-string form.
func FormatSort(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		if k.Desc {
			parts[i] = "-" + k.Path
		} else {
			parts[i] = k.Path
		}
	}
	return strings.Join(parts, ",")
}
