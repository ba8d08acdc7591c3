package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	// ErrorTypeOutOfRange is a write or seek outside a buffer's valid PTS window.
	// Recoverable: callers stash the unit and retry.
	ErrorTypeOutOfRange ErrorType = "OUT_OF_RANGE"
	// ErrorTypeEnded is the expected end of a stream, not a failure.
	ErrorTypeEnded ErrorType = "ENDED"
	// ErrorTypeDecode is a decoder fault or an unrecognized decoder result.
	ErrorTypeDecode ErrorType = "DECODE_ERROR"
	// ErrorTypeInternal is an unexpected internal inconsistency.
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
)

// AppError represents an application error with additional context.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same type, so errors.Is(err, ErrOutOfRange)
// holds for every out-of-range error regardless of message. A target that
// carries a code only matches errors with that code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCode adds an error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// New creates a new AppError.
func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Sentinels for errors.Is checks.
var (
	ErrOutOfRange = New(ErrorTypeOutOfRange, "outside buffer window", http.StatusRequestedRangeNotSatisfiable)
	ErrEnded      = New(ErrorTypeEnded, "stream ended", http.StatusGone)
)

// NewOutOfRangeError creates an out-of-range error.
func NewOutOfRangeError(message string) *AppError {
	return New(ErrorTypeOutOfRange, message, http.StatusRequestedRangeNotSatisfiable)
}

// NewEndedError creates an end-of-stream marker.
func NewEndedError(message string) *AppError {
	return New(ErrorTypeEnded, message, http.StatusGone)
}

// NewDecodeError creates a decode error.
func NewDecodeError(message string) *AppError {
	return New(ErrorTypeDecode, message, http.StatusInternalServerError)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// WrapInternalError wraps an error as internal error.
func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

// IsOutOfRange reports whether err is a recoverable range violation.
func IsOutOfRange(err error) bool {
	return errors.Is(err, ErrOutOfRange)
}

// IsEnded reports whether err marks a normal end of stream.
func IsEnded(err error) bool {
	return errors.Is(err, ErrEnded)
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
