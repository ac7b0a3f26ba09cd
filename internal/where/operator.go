package where

// Operator is a filter operator. The set is closed.
type Operator string

const (
	Equals           Operator = "equals"
	NotEquals        Operator = "not_equals"
	GreaterThan      Operator = "greater_than"
	GreaterThanEqual Operator = "greater_than_equal"
	LessThan         Operator = "less_than"
	LessThanEqual    Operator = "less_than_equal"
	Like             Operator = "like"
	Contains         Operator = "contains"
	In               Operator = "in"
	NotIn            Operator = "not_in"
	Exists           Operator = "exists"
	Near             Operator = "near"
	Within           Operator = "within"
)

// Operators lists every operator in declaration order.
var Operators = []Operator{
	Equals, NotEquals, GreaterThan, GreaterThanEqual, LessThan, LessThanEqual,
	Like, Contains, In, NotIn, Exists, Near, Within,
}

// ParseOperator returns the operator named s.
func ParseOperator(s string) (Operator, bool) {
	for _, op := range Operators {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

// IsComparison reports whether op is an ordering comparison.
func (op Operator) IsComparison() bool {
	switch op {
	case GreaterThan, GreaterThanEqual, LessThan, LessThanEqual:
		return true
	}
	return false
}

// IsList reports whether op takes a list operand.
func (op Operator) IsList() bool {
	return op == In || op == NotIn
}

// IsText reports whether op is a text search.
func (op Operator) IsText() bool {
	return op == Like || op == Contains
}

// IsGeo reports whether op is a geo predicate.
func (op Operator) IsGeo() bool {
	return op == Near || op == Within
}
