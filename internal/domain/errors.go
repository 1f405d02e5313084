// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrItemNotFound     = errors.New("inventory item not found")
	ErrInvalidItem      = errors.New("invalid item: name cannot be empty")
	ErrInvalidQuantity  = errors.New("invalid quantity: quantity cannot be negative")
	ErrHubNotRunning    = errors.New("event hub is not running")
	ErrSubscriberClosed = errors.New("subscriber is closed")
	ErrSendBufferFull   = errors.New("subscriber send buffer is full")
	ErrNotConnected     = errors.New("notify listener is not connected")
)

// Error codes for client responses.
const (
	ErrCodeItemNotFound   = "ITEM_NOT_FOUND"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// NotifyError represents an error from the change-notification backend.
type NotifyError struct {
	Op  string // Operation that failed (connect, listen, wait)
	Err error  // Underlying error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Op, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// NewNotifyError creates a new NotifyError.
func NewNotifyError(op string, err error) *NotifyError {
	return &NotifyError{
		Op:  op,
		Err: err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
