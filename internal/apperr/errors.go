// Package apperr defines the error taxonomy shared by the store and API layers.
//
// Store functions wrap these with context via fmt.Errorf("...: %w", err);
// callers classify with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no verified actor is present.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrForbidden is returned on a scope or ownership violation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateItem is returned when a non-merging add collides with an
	// existing (material, serial/lot, owner) key.
	ErrDuplicateItem = errors.New("stock item with same material name and serial/lot number already exists")

	// ErrInsufficientQuantity is returned when a deduction exceeds available stock.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrInvalidType is returned when a notification is processed as a transfer
	// but is not a transfer request.
	ErrInvalidType = errors.New("notification is not a transfer request")

	// ErrAlreadyProcessed is returned when a transfer notification has already
	// been approved or rejected.
	ErrAlreadyProcessed = errors.New("transfer already processed")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// InsufficientQuantityError carries the shortage for a single stock line.
type InsufficientQuantityError struct {
	MaterialName    string
	SerialLotNumber string
	Available       int
	Requested       int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s (%s): available %d, requested %d",
		e.MaterialName, e.SerialLotNumber, e.Available, e.Requested)
}

func (e *InsufficientQuantityError) Unwrap() error {
	return ErrInsufficientQuantity
}

// ValidationError is a batched field -> message map.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation returns a ValidationError with a single field message.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// OrNil returns e as an error, or nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsClientError reports whether err was caused by the request rather than
// by the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateItem) ||
		errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrValidation)
}
