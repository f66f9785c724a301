package store

import (
	"errors"
	"fmt"
)

// ConnectionError reports a failure to obtain a database connection.
type ConnectionError struct {
	Driver string
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("CONNECTION: %s: %v", e.Driver, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError returns true if err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
