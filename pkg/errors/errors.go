package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeInvalidStateTransition indicates an edge that is not part of a lifecycle
	ErrorTypeInvalidStateTransition ErrorType = "INVALID_STATE_TRANSITION"

	// ErrorTypeNoCapacity indicates no eligible bed was free at allocation time
	ErrorTypeNoCapacity ErrorType = "NO_CAPACITY"

	// ErrorTypeCapacityInvariant indicates a ward would no longer match its declared capacity
	ErrorTypeCapacityInvariant ErrorType = "CAPACITY_INVARIANT_VIOLATION"

	// ErrorTypeInsufficientData indicates a forecast could not be computed for lack of samples
	ErrorTypeInsufficientData ErrorType = "INSUFFICIENT_FORECAST_DATA"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewInvalidTransitionError reports a lifecycle edge that does not exist
func NewInvalidTransitionError(entity, id, from, to string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidStateTransition,
		Message: fmt.Sprintf("%s %s cannot move from %s to %s", entity, id, from, to),
		Details: map[string]string{
			"entity": entity,
			"id":     id,
			"from":   from,
			"to":     to,
		},
	}
}

// NewNoCapacityError reports that no bed could be found; wardID is the ward that fell short
func NewNoCapacityError(wardID string) *AppError {
	return &AppError{
		Type:    ErrorTypeNoCapacity,
		Message: fmt.Sprintf("no eligible bed available for ward %s", wardID),
		Details: map[string]string{"shortfall_ward": wardID},
	}
}

// NewCapacityInvariantError reports a ward whose member count would differ from its capacity
func NewCapacityInvariantError(wardID string, capacity, members int) *AppError {
	return &AppError{
		Type:    ErrorTypeCapacityInvariant,
		Message: fmt.Sprintf("ward %s would hold %d beds against a declared capacity of %d", wardID, members, capacity),
		Details: map[string]string{"ward": wardID},
	}
}

// NewInsufficientDataError reports a ward without any occupancy samples
func NewInsufficientDataError(wardID string) *AppError {
	return &AppError{
		Type:    ErrorTypeInsufficientData,
		Message: fmt.Sprintf("no occupancy samples for ward %s", wardID),
		Details: map[string]string{"ward": wardID},
	}
}

// TypeOf returns the AppError type found in the chain, or an empty type
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsInvalidTransition reports whether err is an invalid state transition
func IsInvalidTransition(err error) bool {
	return TypeOf(err) == ErrorTypeInvalidStateTransition
}

// IsNoCapacity reports whether err is a no capacity error
func IsNoCapacity(err error) bool {
	return TypeOf(err) == ErrorTypeNoCapacity
}

// IsCapacityInvariant reports whether err is a capacity invariant violation
func IsCapacityInvariant(err error) bool {
	return TypeOf(err) == ErrorTypeCapacityInvariant
}

// ShortfallWard returns the ward carried by a NoCapacity error
func ShortfallWard(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Details != nil {
		return appErr.Details["shortfall_ward"]
	}
	return ""
}
