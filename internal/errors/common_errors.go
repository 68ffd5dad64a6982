package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeTransport covers network failures, timeouts and unreachable
	// servers. Retriable by the user.
	ErrTypeTransport ErrorType = "TRANSPORT"
	// ErrTypeProtocol covers malformed or unexpected server responses.
	ErrTypeProtocol ErrorType = "PROTOCOL"
	// ErrTypeRejection is a well-formed response refusing the key.
	ErrTypeRejection ErrorType = "REJECTION"
	// ErrTypeLaunchTargetMissing means no engine executable was found.
	ErrTypeLaunchTargetMissing ErrorType = "LAUNCH_TARGET_MISSING"

	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConflict   ErrorType = "CONFLICT"
	ErrTypePermission ErrorType = "PERMISSION"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the type of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err's chain contains an AppError of type t
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// NewTransportError creates a network-related error
func NewTransportError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTransport, message, cause)
}

// NewProtocolError creates an error for unparseable or unexpected responses
func NewProtocolError(message string, cause error) *AppError {
	return NewAppError(ErrTypeProtocol, message, cause)
}

// NewRejectionError records the server's refusal. The result is kept in the
// context under "result".
func NewRejectionError(result string, cause error) *AppError {
	return NewAppError(ErrTypeRejection, fmt.Sprintf("server rejected key: %s", result), cause).
		WithContext("result", result)
}

// NewLaunchTargetMissingError reports that none of the candidate engines exist
func NewLaunchTargetMissingError(targets []string) *AppError {
	return NewAppError(ErrTypeLaunchTargetMissing, "no launch target installed", ErrLaunchTargetMissing).
		WithContext("targets", targets)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, cause error) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), cause)
}

// NewConflictError creates a conflict error
func NewConflictError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConflict, message, cause)
}

// NewPermissionError creates a permission error
func NewPermissionError(message string, cause error) *AppError {
	return NewAppError(ErrTypePermission, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
