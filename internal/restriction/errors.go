package restriction

import (
	"errors"
	"fmt"
)

// InvalidRestrictionError reports a malformed predicate or query plan. It is
// raised while building, never while executing, and is never worth retrying.
type InvalidRestrictionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Property is the offending attribute path, if any.
	Property string

	// Operator is the offending operator, if any.
	Operator Operator

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes invalid restrictions.
type ErrorCode string

const (
	// ErrCodeArity indicates the operand count does not match the operator.
	ErrCodeArity ErrorCode = "ARITY_MISMATCH"

	// ErrCodeUnknownOperator indicates an operator outside the known set.
	ErrCodeUnknownOperator ErrorCode = "UNKNOWN_OPERATOR"

	// ErrCodeEmptyProperty indicates a condition without a property path.
	ErrCodeEmptyProperty ErrorCode = "EMPTY_PROPERTY"

	// ErrCodeUnknownProperty indicates a path that does not resolve.
	ErrCodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodeBadOperand indicates an operand of the wrong shape.
	ErrCodeBadOperand ErrorCode = "BAD_OPERAND"

	// ErrCodeSyntax indicates a textual filter that does not parse.
	ErrCodeSyntax ErrorCode = "SYNTAX"

	// ErrCodeBadPlan indicates invalid ordering, projection or pagination.
	ErrCodeBadPlan ErrorCode = "BAD_PLAN"
)

// Error implements the error interface.
func (e *InvalidRestrictionError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Property != "" && e.Operator != "":
		return fmt.Sprintf("%s: %s (property=%s, operator=%s)", e.Code, msg, e.Property, e.Operator)
	case e.Property != "":
		return fmt.Sprintf("%s: %s (property=%s)", e.Code, msg, e.Property)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *InvalidRestrictionError) Unwrap() error { return e.Err }

// IsInvalidRestriction returns true if err is or wraps an
// InvalidRestrictionError.
func IsInvalidRestriction(err error) bool {
	var ire *InvalidRestrictionError
	return errors.As(err, &ire)
}

// CodeOf returns the code of a wrapped InvalidRestrictionError, or "".
func CodeOf(err error) ErrorCode {
	var ire *InvalidRestrictionError
	if errors.As(err, &ire) {
		return ire.Code
	}
	return ""
}
