package restriction

import (
	"reflect"
	"sort"
	"strings"
)

// Restriction is a filter predicate over one entity type.
//
// This is a sealed interface. The implementations are Condition and Group.
type Restriction interface {
	restrictionNode()
}

// Operator is a comparison operator.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpGt        Operator = "gt"
	OpGe        Operator = "ge"
	OpLt        Operator = "lt"
	OpLe        Operator = "le"
	OpLike      Operator = "like"
	OpNotLike   Operator = "not-like"
	OpILike     Operator = "ilike"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not-in"
	OpIsNull    Operator = "is-null"
	OpIsNotNull Operator = "is-not-null"
	OpBetween   Operator = "between"
)

// Arity is the number of operands an operator accepts.
type Arity int

const (
	ArityNone Arity = iota // no operand
	ArityOne               // exactly one operand
	ArityTwo               // exactly two operands
	ArityMany              // one or more operands
)

// Arity returns the operand count o accepts. Unknown operators report
// ArityNone; check Valid first.
func (o Operator) Arity() Arity {
	switch o {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpLike, OpNotLike, OpILike:
		return ArityOne
	case OpIn, OpNotIn:
		return ArityMany
	case OpBetween:
		return ArityTwo
	default:
		return ArityNone
	}
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpLike, OpNotLike, OpILike,
		OpIn, OpNotIn, OpIsNull, OpIsNotNull, OpBetween:
		return true
	}
	return false
}

// accepts reports whether n operands satisfy the arity.
func (a Arity) accepts(n int) bool {
	switch a {
	case ArityNone:
		return n == 0
	case ArityOne:
		return n == 1
	case ArityTwo:
		return n == 2
	default:
		return n >= 1
	}
}

func (a Arity) String() string {
	switch a {
	case ArityNone:
		return "no operands"
	case ArityOne:
		return "exactly one operand"
	case ArityTwo:
		return "exactly two operands"
	default:
		return "at least one operand"
	}
}

// Condition is a single predicate: property op operands.
type Condition struct {
	property string
	op       Operator
	operands []any
}

func (Condition) restrictionNode() {}

// Property returns the dotted attribute path.
func (c Condition) Property() string { return c.property }

// Operator returns the comparison operator.
func (c Condition) Operator() Operator { return c.op }

// Operands returns a copy of the operands.
func (c Condition) Operands() []any {
	out := make([]any, len(c.operands))
	copy(out, c.operands)
	return out
}

// Operand returns the first operand, or nil when there is none.
func (c Condition) Operand() any {
	if len(c.operands) == 0 {
		return nil
	}
	return c.operands[0]
}

// Logic is the boolean connective of a Group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Group combines restrictions with one connective. The zero Logic means AND.
type Group struct {
	name    string
	logic   Logic
	members []Restriction
}

func (Group) restrictionNode() {}

// Name returns the group name; it is informational only.
func (g Group) Name() string { return g.name }

// Logic returns the connective, defaulting to AND.
func (g Group) Logic() Logic {
	if g.logic == "" {
		return LogicAnd
	}
	return g.logic
}

// Members returns a copy of the grouped restrictions.
func (g Group) Members() []Restriction {
	out := make([]Restriction, len(g.members))
	copy(out, g.members)
	return out
}

// New builds a condition and checks operator arity.
//
// A single slice operand for in/not-in is expanded into its elements.
func New(property string, op Operator, operands ...any) (Condition, error) {
	c := condition(property, op, operands)
	if err := validateCondition(c); err != nil {
		return Condition{}, err
	}
	return c, nil
}

// MustNew is New for literals known to be valid; it panics otherwise.
func MustNew(property string, op Operator, operands ...any) Condition {
	c, err := New(property, op, operands...)
	if err != nil {
		panic(err)
	}
	return c
}

func condition(property string, op Operator, operands []any) Condition {
	if op.Arity() == ArityMany && len(operands) == 1 {
		operands = expand(operands[0])
	}
	ops := make([]any, len(operands))
	copy(ops, operands)
	return Condition{property: strings.TrimSpace(property), op: op, operands: ops}
}

// expand turns a slice or array value into its elements. []byte is a scalar.
func expand(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return []any{v}
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Eq matches property = value.
func Eq(property string, value any) Condition { return condition(property, OpEq, []any{value}) }

// Ne matches property <> value.
func Ne(property string, value any) Condition { return condition(property, OpNe, []any{value}) }

// Gt matches property > value.
func Gt(property string, value any) Condition { return condition(property, OpGt, []any{value}) }

// Ge matches property >= value.
func Ge(property string, value any) Condition { return condition(property, OpGe, []any{value}) }

// Lt matches property < value.
func Lt(property string, value any) Condition { return condition(property, OpLt, []any{value}) }

// Le matches property <= value.
func Le(property string, value any) Condition { return condition(property, OpLe, []any{value}) }

// Like matches a SQL LIKE pattern.
func Like(property, pattern string) Condition {
	return condition(property, OpLike, []any{pattern})
}

// NotLike negates Like.
func NotLike(property, pattern string) Condition {
	return condition(property, OpNotLike, []any{pattern})
}

// ILike is a case-insensitive Like.
func ILike(property, pattern string) Condition {
	return condition(property, OpILike, []any{pattern})
}

// In matches any of values. A single slice argument is expanded.
func In(property string, values ...any) Condition { return condition(property, OpIn, values) }

// NotIn matches none of values. A single slice argument is expanded.
func NotIn(property string, values ...any) Condition { return condition(property, OpNotIn, values) }

// IsNull matches a NULL column.
func IsNull(property string) Condition { return condition(property, OpIsNull, nil) }

// IsNotNull matches a non-NULL column.
func IsNotNull(property string) Condition { return condition(property, OpIsNotNull, nil) }

// Between matches low <= property <= high.
func Between(property string, low, high any) Condition {
	return condition(property, OpBetween, []any{low, high})
}

// And groups members with AND.
func And(name string, members ...Restriction) Group {
	return group(name, LogicAnd, members)
}

// Or groups members with OR.
func Or(name string, members ...Restriction) Group {
	return group(name, LogicOr, members)
}

func group(name string, logic Logic, members []Restriction) Group {
	ms := make([]Restriction, len(members))
	copy(ms, members)
	return Group{name: name, logic: logic, members: ms}
}

// FromMap translates property → value into one eq condition per entry,
// sorted by property so compiled SQL is deterministic. A nil value becomes
// IsNull.
func FromMap(m map[string]any) []Restriction {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Restriction, 0, len(keys))
	for _, k := range keys {
		if m[k] == nil {
			out = append(out, IsNull(k))
			continue
		}
		out = append(out, Eq(k, m[k]))
	}
	return out
}

// Properties returns every property path referenced by r, in first-seen
// order without duplicates.
func Properties(rs ...Restriction) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Restriction)
	walk = func(r Restriction) {
		switch r := r.(type) {
		case Condition:
			if !seen[r.property] {
				seen[r.property] = true
				out = append(out, r.property)
			}
		case *Condition:
			if r != nil {
				walk(*r)
			}
		case Group:
			for _, m := range r.members {
				walk(m)
			}
		case *Group:
			if r != nil {
				walk(*r)
			}
		}
	}
	for _, r := range rs {
		walk(r)
	}
	return out
}
