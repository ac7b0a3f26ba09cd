package docstore

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Match reports whether doc satisfies a query document. It evaluates the
// subset of the MongoDB query language the filter compiler emits: $and,
// $or, $nor, $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists,
// $regex/$options, $elemMatch, $geoWithin/$box and $not.
//
// Dotted paths descend into sub-documents only; arrays are addressed with
// $elemMatch.
func Match(doc bson.D, filter bson.D) (bool, error) {
	for _, e := range filter {
		ok, err := matchElem(doc, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElem(doc bson.D, e bson.E) (bool, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		subs, ok := e.Value.(bson.A)
		if !ok || len(subs) == 0 {
			return false, fmt.Errorf("%s requires a non-empty array", e.Key)
		}
		for _, sub := range subs {
			d, ok := sub.(bson.D)
			if !ok {
				return false, fmt.Errorf("%s element must be a document, got %T", e.Key, sub)
			}
			ok, err := Match(doc, d)
			if err != nil {
				return false, err
			}
			switch {
			case e.Key == "$and" && !ok:
				return false, nil
			case e.Key == "$or" && ok:
				return true, nil
			case e.Key == "$nor" && ok:
				return false, nil
			}
		}
		return e.Key != "$or", nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return false, fmt.Errorf("unsupported top-level operator %s", e.Key)
	}

	v, found := lookup(doc, e.Key)
	if ops, ok := operators(e.Value); ok {
		return matchOps(v, found, ops)
	}
	return equalTo(v, found, e.Value), nil
}

// operators returns v as an operator document such as {$gt: 1}. Logical
// operators make a query document, not an operator document.
func operators(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		switch {
		case e.Key == "$and" || e.Key == "$or" || e.Key == "$nor":
			return nil, false
		case !strings.HasPrefix(e.Key, "$"):
			return nil, false
		}
	}
	return d, true
}

func matchOps(v any, found bool, ops bson.D) (bool, error) {
	for _, o := range ops {
		ok, err := matchOp(v, found, o, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOp(v any, found bool, o bson.E, siblings bson.D) (bool, error) {
	switch o.Key {
	case "$eq":
		return equalTo(v, found, o.Value), nil
	case "$ne":
		return !equalTo(v, found, o.Value), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !found || v == nil {
			return false, nil
		}
		c, ok := compare(v, o.Value)
		if !ok {
			return false, nil
		}
		switch o.Key {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		}
		return c <= 0, nil
	case "$in", "$nin":
		items, ok := o.Value.(bson.A)
		if !ok {
			return false, fmt.Errorf("%s requires an array", o.Key)
		}
		in := false
		for _, item := range items {
			if equalTo(v, found, item) {
				in = true
				break
			}
		}
		return in == (o.Key == "$in"), nil
	case "$exists":
		want, _ := o.Value.(bool)
		return found == want, nil
	case "$regex":
		s, ok := v.(string)
		if !found || !ok {
			return false, nil
		}
		pattern, _ := o.Value.(string)
		for _, sib := range siblings {
			if opts, _ := sib.Value.(string); sib.Key == "$options" && strings.Contains(opts, "i") {
				pattern = "(?i)" + pattern
			}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("$regex: %w", err)
		}
		return re.MatchString(s), nil
	case "$options":
		return true, nil
	case "$elemMatch":
		items, ok := v.(bson.A)
		if !found || !ok {
			return false, nil
		}
		sub, ok := o.Value.(bson.D)
		if !ok {
			return false, fmt.Errorf("$elemMatch requires a document")
		}
		for _, item := range items {
			var ok bool
			var err error
			if ops, isOps := operators(sub); isOps {
				ok, err = matchOps(item, true, ops)
			} else if d, isDoc := item.(bson.D); isDoc {
				ok, err = Match(d, sub)
			}
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "$geoWithin":
		return withinBox(v, found, o.Value)
	case "$not":
		ops, ok := operators(o.Value)
		if !ok {
			return false, fmt.Errorf("$not requires an operator document")
		}
		ok, err := matchOps(v, found, ops)
		return !ok, err
	}
	return false, fmt.Errorf("unsupported operator %s", o.Key)
}

func withinBox(v any, found bool, shape any) (bool, error) {
	d, ok := shape.(bson.D)
	if !ok || len(d) != 1 || d[0].Key != "$box" {
		return false, fmt.Errorf("$geoWithin supports $box only")
	}
	corners, ok := d[0].Value.(bson.A)
	if !ok || len(corners) != 2 {
		return false, fmt.Errorf("$box requires two corners")
	}
	lo, okLo := pair(corners[0])
	hi, okHi := pair(corners[1])
	if !okLo || !okHi {
		return false, fmt.Errorf("$box corners must be [x, y]")
	}
	if !found {
		return false, nil
	}
	p, ok := pair(v)
	if !ok {
		return false, nil
	}
	return p[0] >= lo[0] && p[0] <= hi[0] && p[1] >= lo[1] && p[1] <= hi[1], nil
}

func pair(v any) ([2]float64, bool) {
	a, ok := v.(bson.A)
	if !ok || len(a) != 2 {
		return [2]float64{}, false
	}
	x, okX := toFloat(a[0])
	y, okY := toFloat(a[1])
	return [2]float64{x, y}, okX && okY
}

// lookup follows a dotted path through sub-documents.
func lookup(doc bson.D, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		d, ok := cur.(bson.D)
		if !ok {
			return nil, false
		}
		found := false
		for _, e := range d {
			if e.Key == seg {
				cur, found = e.Value, true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return cur, true
}

// equalTo implements $eq: null matches absent and null values.
func equalTo(v any, found bool, want any) bool {
	if want == nil {
		return !found || v == nil
	}
	if !found {
		return false
	}
	return equal(v, want)
}

func equal(a, b any) bool {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case bson.A:
		bv, ok := toArray(b)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case bson.D:
		bv, ok := b.(bson.D)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Key != bv[i].Key || !equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func toArray(v any) (bson.A, bool) {
	switch a := v.(type) {
	case bson.A:
		return a, true
	case []any:
		return bson.A(a), true
	}
	return nil, false
}

// compare orders two values of the same BSON type class.
func compare(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// sortCompare orders values for sorting with MongoDB's cross-type order:
// absent and null first, then numbers, strings, documents, arrays and
// booleans.
func sortCompare(a any, aFound bool, b any, bFound bool) int {
	ra, rb := typeRank(a, aFound), typeRank(b, bFound)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return 0
}

func typeRank(v any, found bool) int {
	if !found || v == nil {
		return 1
	}
	switch v.(type) {
	case float64, int32, int64, int:
		return 2
	case string:
		return 3
	case bson.D:
		return 4
	case bson.A:
		return 5
	case bool:
		return 8
	}
	return 10
}
