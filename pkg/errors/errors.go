package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Validation errors
	ErrShapeMismatch    = errors.New("tensor shape mismatch")
	ErrMissingParameter = errors.New("missing parameter tensor")
	ErrLengthMismatch   = errors.New("sequence length mismatch")
	ErrEmptySequence    = errors.New("empty input sequence")
	ErrInvalidDimension = errors.New("invalid dimension: must be positive")

	// Computation errors
	ErrForwardFailed  = errors.New("forward pass failed")
	ErrBackwardFailed = errors.New("backward pass failed")
	ErrCancelled      = errors.New("computation cancelled")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeComputation ErrorType = "computation"
	ErrorTypeInternal    ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewComputationError creates a computation error
func NewComputationError(code, message string) *AppError {
	return NewAppError(ErrorTypeComputation, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// NewShapeError creates a validation error for a tensor whose dimensions
// disagree with the expected ones. Shape errors are fatal: the core never
// broadcasts or truncates to recover.
func NewShapeError(name string, wantRows, wantCols, gotRows, gotCols int) *AppError {
	return NewValidationError(CodeShapeMismatch,
		fmt.Sprintf("%s must have shape (%d, %d), got (%d, %d)", name, wantRows, wantCols, gotRows, gotCols))
}

// NewMissingParameterError creates a validation error for an absent weight or bias
func NewMissingParameterError(name string) *AppError {
	return NewValidationError(CodeMissingParameter,
		fmt.Sprintf("required parameter %q is missing", name))
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeShapeMismatch    = "SHAPE_MISMATCH"
	CodeMissingParameter = "MISSING_PARAMETER"
	CodeLengthMismatch   = "LENGTH_MISMATCH"
	CodeEmptySequence    = "EMPTY_SEQUENCE"
	CodeInvalidDimension = "INVALID_DIMENSION"
	CodeInvalidInput     = "INVALID_INPUT"

	// Computation error codes
	CodeForwardFailed  = "FORWARD_FAILED"
	CodeBackwardFailed = "BACKWARD_FAILED"
	CodeCancelled      = "CANCELLED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
