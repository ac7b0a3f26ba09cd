package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/where"
)

// AssertionError is returned when an assertion or expectation fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// checkExpect compares a decoded response against exp and returns one
// message per mismatch.
func checkExpect(actual map[string]any, exp *Expect) []string {
	var msgs []string
	errBody, _ := actual["error"].(map[string]any)

	if exp.Error != "" {
		switch {
		case errBody == nil:
			msgs = append(msgs, fmt.Sprintf("expected error %s, got success", exp.Error))
		case errBody["code"] != exp.Error:
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %v: %v", exp.Error, errBody["code"], errBody["message"]))
		case exp.Field != "" && errBody["field"] != exp.Field:
			msgs = append(msgs, fmt.Sprintf("expected error field %q, got %v", exp.Field, errBody["field"]))
		}
		return msgs
	}
	if errBody != nil {
		return append(msgs, fmt.Sprintf("unexpected error %v: %v", errBody["code"], errBody["message"]))
	}

	if notFound, _ := actual["notFound"].(bool); notFound != exp.NotFound {
		msgs = append(msgs, fmt.Sprintf("expected notFound=%t, got %t", exp.NotFound, notFound))
	}

	if exp.Count != nil {
		if n, ok := actual["count"].(float64); !ok || int(n) != *exp.Count {
			msgs = append(msgs, fmt.Sprintf("expected count %d, got %v", *exp.Count, actual["count"]))
		}
	}

	if exp.Doc != nil {
		if err := matchSubset("doc", actual["doc"], exp.Doc); err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	if exp.TotalDocs != nil || exp.Docs != nil {
		page, _ := actual["docs"].(map[string]any)
		if page == nil {
			return append(msgs, "expected a page of documents, got none")
		}
		if exp.TotalDocs != nil {
			if n, _ := page["totalDocs"].(float64); int(n) != *exp.TotalDocs {
				msgs = append(msgs, fmt.Sprintf("expected totalDocs %d, got %v", *exp.TotalDocs, page["totalDocs"]))
			}
		}
		if exp.Docs != nil {
			want := make([]any, len(exp.Docs))
			for i, d := range exp.Docs {
				want[i] = d
			}
			if err := matchSubset("docs", page["docs"], want); err != nil {
				msgs = append(msgs, err.Error())
			}
		}
	}
	return msgs
}

// evaluateAssertion checks one final-state assertion through the adapter.
func evaluateAssertion(ctx context.Context, ops adapter.Operations, a Assertion) error {
	op := adapter.Op{Locale: a.Locale, Draft: a.Draft}

	var w where.Expr
	if a.Where != nil {
		var err error
		if w, err = where.Parse(a.Where); err != nil {
			return err
		}
	}

	switch a.Type {
	case AssertCount:
		n, err := ops.Count(ctx, a.Collection, w, op)
		if err != nil {
			return err
		}
		if n != a.Count {
			return &AssertionError{
				Type:     AssertCount,
				Expected: fmt.Sprintf("%d documents", a.Count),
				Actual:   fmt.Sprintf("%d", n),
			}
		}
		return nil

	case AssertNotFound:
		_, found, err := ops.FindByID(ctx, a.Collection, a.ID, op)
		if err != nil {
			return err
		}
		if found {
			return &AssertionError{
				Type:     AssertNotFound,
				Expected: fmt.Sprintf("no document %q", a.ID),
				Actual:   "document exists",
			}
		}
		return nil

	case AssertFinalState:
		var (
			doc   document.Document
			found bool
			err   error
		)
		switch {
		case a.Global:
			doc, found, err = ops.FindGlobal(ctx, a.Collection, op)
		case a.ID != "":
			doc, found, err = ops.FindByID(ctx, a.Collection, a.ID, op)
		default:
			doc, found, err = ops.FindOne(ctx, a.Collection, w, op)
		}
		if err != nil {
			return err
		}
		if !found {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: "a matching document",
				Actual:   "not found",
			}
		}
		return matchSubset("doc", doc, a.Expect)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// matchSubset checks that actual contains expected. Objects match when
// every expected key matches; arrays must have equal length and match
// element-wise. A null expectation also matches an absent key. Both sides
// are normalized through JSON first.
func matchSubset(path string, actual, expected any) error {
	a, err := normalize(actual)
	if err != nil {
		return err
	}
	e, err := normalize(expected)
	if err != nil {
		return err
	}
	return subset(path, a, e)
}

func subset(path string, actual, expected any) error {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return mismatch(path, expected, actual)
		}
		keys := make([]string, 0, len(exp))
		for k := range exp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, exists := act[k]
			if !exists {
				if exp[k] == nil {
					continue
				}
				return &AssertionError{
					Type:     "subset",
					Expected: fmt.Sprintf("%s.%s = %v", path, k, exp[k]),
					Actual:   "field absent",
				}
			}
			if err := subset(path+"."+k, v, exp[k]); err != nil {
				return err
			}
		}
		return nil

	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return mismatch(path, expected, actual)
		}
		for i := range exp {
			if err := subset(fmt.Sprintf("%s[%d]", path, i), act[i], exp[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if actual != expected {
		return mismatch(path, expected, actual)
	}
	return nil
}

func mismatch(path string, expected, actual any) error {
	return &AssertionError{
		Type:     "subset",
		Expected: fmt.Sprintf("%s = %v", path, expected),
		Actual:   fmt.Sprintf("%v", actual),
	}
}
