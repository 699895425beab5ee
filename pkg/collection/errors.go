package collection

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateID is returned by a Repository when a record with the same ID
// already exists.
var ErrDuplicateID = errors.New("duplicate collection id")

// ValidationError reports malformed or out-of-policy input. Errors holds every
// problem found, in order.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// AuthorizationError reports a failed role or ownership check.
type AuthorizationError struct {
	Operation string
	Reason    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to %s: %s", e.Operation, e.Reason)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("collection %s not found", e.ID)
}

// ConflictError reports a write against a stale version.
type ConflictError struct {
	ID      string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("collection %s was modified concurrently (version %d is stale)", e.ID, e.Version)
}

func invalid(msgs ...string) *ValidationError {
	return &ValidationError{Errors: msgs}
}
