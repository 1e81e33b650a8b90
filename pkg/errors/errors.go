package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrHookNotFound          = errors.New("hook not found")
	ErrAuthorityUnavailable  = errors.New("credential service unavailable")
	ErrInvalidDeliveryConfig = errors.New("invalid delivery config")
	ErrUnsupportedChannel    = errors.New("unsupported delivery channel")
)

// CodeStorage marks persistence failures carried by AppError.
const CodeStorage = "storage_failure"

// AppError represents an application error with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Storage wraps a persistence failure so the HTTP edge can classify it.
func Storage(message string, err error) error {
	if err == nil {
		return nil
	}
	return NewAppError(CodeStorage, message, err)
}

// IsStorage reports whether err is (or wraps) a storage failure.
func IsStorage(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeStorage
}
