package dao

import (
	"errors"
	"fmt"
)

// NonUniqueResultError is returned by Unique when more than one row matches.
type NonUniqueResultError struct {
	Entity string
}

// Error implements the error interface.
func (e *NonUniqueResultError) Error() string {
	return fmt.Sprintf("NON_UNIQUE_RESULT: query for %s returned more than one row", e.Entity)
}

// NotFoundError is returned when an id-based operation requires a row and
// none exists.
type NotFoundError struct {
	Entity string
	ID     any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("NOT_FOUND: %s with id %v does not exist", e.Entity, e.ID)
}

// DeleteError reports a failed delete: a missing row (wrapping
// *NotFoundError) or a store failure such as a constraint violation.
type DeleteError struct {
	Entity string
	ID     any
	Err    error
}

// Error implements the error interface.
func (e *DeleteError) Error() string {
	return fmt.Sprintf("DELETE_FAILED: %s with id %v: %v", e.Entity, e.ID, e.Err)
}

// Unwrap returns the cause.
func (e *DeleteError) Unwrap() error { return e.Err }

// IllegalStateError reports an identifier state, or DAO binding, that the
// operation cannot work with.
type IllegalStateError struct {
	Entity    string
	Operation string
	Message   string
}

// Error implements the error interface.
func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("ILLEGAL_STATE: %s %s: %s", e.Operation, e.Entity, e.Message)
}

// IsNonUniqueResult returns true if err is or wraps a NonUniqueResultError.
func IsNonUniqueResult(err error) bool {
	var e *NonUniqueResultError
	return errors.As(err, &e)
}

// IsNotFound returns true if err is or wraps a NotFoundError, including the
// cause of a DeleteError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsDeleteError returns true if err is or wraps a DeleteError.
func IsDeleteError(err error) bool {
	var e *DeleteError
	return errors.As(err, &e)
}

// IsIllegalState returns true if err is or wraps an IllegalStateError.
func IsIllegalState(err error) bool {
	var e *IllegalStateError
	return errors.As(err, &e)
}
