package restriction

import "fmt"

// Validate checks r and every member of a group: known operator, non-empty
// property and operand arity. It is a pure function.
func Validate(r Restriction) error {
	switch r := r.(type) {
	case nil:
		return &InvalidRestrictionError{Code: ErrCodeBadOperand, Message: "nil restriction"}
	case Condition:
		return validateCondition(r)
	case *Condition:
		if r == nil {
			return &InvalidRestrictionError{Code: ErrCodeBadOperand, Message: "nil restriction"}
		}
		return validateCondition(*r)
	case Group:
		return validateGroup(r)
	case *Group:
		if r == nil {
			return &InvalidRestrictionError{Code: ErrCodeBadOperand, Message: "nil restriction"}
		}
		return validateGroup(*r)
	default:
		return &InvalidRestrictionError{Code: ErrCodeBadOperand, Message: fmt.Sprintf("unsupported restriction %T", r)}
	}
}

// ValidateAll validates each restriction in order and returns the first
// error.
func ValidateAll(rs []Restriction) error {
	for _, r := range rs {
		if err := Validate(r); err != nil {
			return err
		}
	}
	return nil
}

func validateGroup(g Group) error {
	if g.logic != "" && g.logic != LogicAnd && g.logic != LogicOr {
		return &InvalidRestrictionError{Code: ErrCodeUnknownOperator, Message: fmt.Sprintf("group %q: unknown logic %q", g.name, g.logic)}
	}
	for _, m := range g.members {
		if err := Validate(m); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	if c.property == "" {
		return &InvalidRestrictionError{Code: ErrCodeEmptyProperty, Operator: c.op, Message: "property is required"}
	}
	if !c.op.Valid() {
		return &InvalidRestrictionError{
			Code:     ErrCodeUnknownOperator,
			Property: c.property,
			Operator: c.op,
			Message:  fmt.Sprintf("unknown operator %q", c.op),
		}
	}

	arity := c.op.Arity()
	if !arity.accepts(len(c.operands)) {
		return &InvalidRestrictionError{
			Code:     ErrCodeArity,
			Property: c.property,
			Operator: c.op,
			Message:  fmt.Sprintf("%s takes %s, got %d", c.op, arity, len(c.operands)),
		}
	}

	for i, v := range c.operands {
		if v == nil {
			return &InvalidRestrictionError{
				Code:     ErrCodeBadOperand,
				Property: c.property,
				Operator: c.op,
				Message:  fmt.Sprintf("operand %d is nil; use is-null or is-not-null", i),
			}
		}
	}

	switch c.op {
	case OpLike, OpNotLike, OpILike:
		if _, ok := c.operands[0].(string); !ok {
			return &InvalidRestrictionError{
				Code:     ErrCodeBadOperand,
				Property: c.property,
				Operator: c.op,
				Message:  fmt.Sprintf("pattern must be a string, got %T", c.operands[0]),
			}
		}
	}
	return nil
}
