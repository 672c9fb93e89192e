package shops

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup by shop id yields no record.
var ErrNotFound = errors.New("coffee store not found")

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StorageError wraps a failure of the tabular store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func missing(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
