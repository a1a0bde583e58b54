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

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates a malformed or unexpected response from an external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeResolutionEmpty indicates geocoding returned no match for a query
	ErrorTypeResolutionEmpty ErrorType = "RESOLUTION_EMPTY"

	// ErrorTypeNetworkFailure indicates a collaborator could not be reached or timed out
	ErrorTypeNetworkFailure ErrorType = "NETWORK_FAILURE"

	// ErrorTypeServiceUnconfigured indicates a collaborator is absent by configuration
	ErrorTypeServiceUnconfigured ErrorType = "SERVICE_UNCONFIGURED"

	// ErrorTypeOverlayBuildFailure indicates a route overlay could not be installed
	ErrorTypeOverlayBuildFailure ErrorType = "OVERLAY_BUILD_FAILURE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
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

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
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

// NewResolutionEmptyError reports a query that geocoding could not place
func NewResolutionEmptyError(query string) *AppError {
	return &AppError{
		Type:    ErrorTypeResolutionEmpty,
		Message: fmt.Sprintf("no location found for %q", query),
	}
}

// NewNetworkFailureError wraps a transport failure talking to a collaborator
func NewNetworkFailureError(collaborator string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeNetworkFailure,
		Message: collaborator + " unreachable",
		Err:     err,
	}
}

// NewServiceUnconfiguredError reports a collaborator that is disabled by configuration
func NewServiceUnconfiguredError(collaborator string) *AppError {
	return &AppError{
		Type:    ErrorTypeServiceUnconfigured,
		Message: collaborator + " is not configured",
	}
}

// NewOverlayBuildFailureError reports a route overlay that could not be installed
func NewOverlayBuildFailureError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeOverlayBuildFailure,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err's chain carries an AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	return TypeOf(err) == errorType
}
