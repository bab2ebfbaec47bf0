package db

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrStoreClosed   = errors.New("database is closed")
	ErrTokenNotFound = errors.New("access token not found")
)

// StoreError wraps a failed database operation with its name
type StoreError struct {
	Operation string
	Cause     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("database operation %s failed: %v", e.Operation, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError
func NewStoreError(operation string, cause error) *StoreError {
	return &StoreError{Operation: operation, Cause: cause}
}
