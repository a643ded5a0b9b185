// Package errors provides error handling functionality for the privchat application.
// It defines error categories, error types, and error message generation.
package errors

import (
	"fmt"

	"github.com/real-rm/privchat/internal/message"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents authentication and authorization errors
	CategoryAuth ErrorCategory = "auth"
	// CategoryValidation represents input validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryService represents service-level errors (database, delivery)
	CategoryService ErrorCategory = "service"
	// CategoryRateLimit represents rate limiting errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Authentication errors
	ErrCodeInvalidToken        ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeConfirmationNeeded  ErrorCode = "EMAIL_CONFIRMATION_REQUIRED"

	// Validation errors
	ErrCodeInvalidFormat  ErrorCode = "INVALID_FORMAT"
	ErrCodeMissingField   ErrorCode = "MISSING_FIELD"
	ErrCodeMessageTooLong ErrorCode = "MESSAGE_TOO_LONG"
	ErrCodeEmptyMessage   ErrorCode = "EMPTY_MESSAGE"

	// Service errors
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeDuplicate     ErrorCode = "ALREADY_EXISTS"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeServiceError  ErrorCode = "SERVICE_ERROR"

	// Rate limiting errors
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
)

// ChatError represents an application error with category and recoverability information
type ChatError struct {
	Category    ErrorCategory
	Code        ErrorCode
	Message     string
	Recoverable bool
	RetryAfter  int // milliseconds, only for rate limit errors
	Cause       error
}

// Error implements the error interface
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// IsFatal returns true if the error is fatal and requires connection closure
func (e *ChatError) IsFatal() bool {
	return !e.Recoverable
}

// ToErrorInfo converts a ChatError to a message.ErrorInfo for wire protocol
func (e *ChatError) ToErrorInfo() *message.ErrorInfo {
	return &message.ErrorInfo{
		Code:        string(e.Code),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		RetryAfter:  e.RetryAfter,
	}
}

// NewAuthError creates a new authentication error (fatal)
func NewAuthError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryAuth,
		Code:        code,
		Message:     message,
		Recoverable: false, // Auth errors are fatal
		Cause:       cause,
	}
}

// NewValidationError creates a new validation error (recoverable)
func NewValidationError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryValidation,
		Code:        code,
		Message:     message,
		Recoverable: true, // Validation errors are recoverable
		Cause:       cause,
	}
}

// NewServiceError creates a new service error (recoverable with retry)
func NewServiceError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryService,
		Code:        code,
		Message:     message,
		Recoverable: true, // Service errors are recoverable
		Cause:       cause,
	}
}

// NewRateLimitError creates a new rate limit error (recoverable with retry after)
func NewRateLimitError(code ErrorCode, message string, retryAfter int, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryRateLimit,
		Code:        code,
		Message:     message,
		Recoverable: true,
		RetryAfter:  retryAfter,
		Cause:       cause,
	}
}

// Common error constructors for convenience

// ErrInvalidToken creates an invalid token error.
// All token verification failures map here so callers cannot distinguish
// a malformed token from an expired or mistyped one.
func ErrInvalidToken(cause error) *ChatError {
	return NewAuthError(ErrCodeInvalidToken, "Invalid authentication token", cause)
}

// ErrInvalidCredentials creates an invalid credentials error
func ErrInvalidCredentials() *ChatError {
	return NewAuthError(ErrCodeInvalidCredentials, "Invalid email or password", nil)
}

// ErrConfirmationRequired creates an email-confirmation-required error
func ErrConfirmationRequired() *ChatError {
	return NewAuthError(ErrCodeConfirmationNeeded, "Email confirmation required before login", nil)
}

// ErrInvalidMessageFormat creates an invalid message format error
func ErrInvalidMessageFormat(details string, cause error) *ChatError {
	return NewValidationError(ErrCodeInvalidFormat, fmt.Sprintf("Invalid message format: %s", details), cause)
}

// ErrMissingField creates a missing field error
func ErrMissingField(fieldName string) *ChatError {
	return NewValidationError(ErrCodeMissingField, fmt.Sprintf("Required field missing: %s", fieldName), nil)
}

// ErrMessageTooLong creates an oversized content error
func ErrMessageTooLong(length int, maxLength int) *ChatError {
	return NewValidationError(ErrCodeMessageTooLong,
		fmt.Sprintf("Message length %d exceeds maximum %d characters", length, maxLength), nil)
}

// ErrEmptyMessage creates an empty content error
func ErrEmptyMessage() *ChatError {
	return NewValidationError(ErrCodeEmptyMessage, "Message content is empty", nil)
}

// ErrDatabaseError creates a database error
func ErrDatabaseError(cause error) *ChatError {
	return NewServiceError(ErrCodeDatabaseError, "Database operation failed", cause)
}

// ErrDuplicate creates an already-exists error
func ErrDuplicate(what string) *ChatError {
	return NewServiceError(ErrCodeDuplicate, fmt.Sprintf("%s already exists", what), nil)
}

// ErrNotFound creates a not-found error
func ErrNotFound(what string) *ChatError {
	return NewServiceError(ErrCodeNotFound, fmt.Sprintf("%s not found", what), nil)
}

// ErrTooManyRequests creates a too many requests error
func ErrTooManyRequests(retryAfter int) *ChatError {
	return NewRateLimitError(ErrCodeTooManyRequests,
		"Too many requests, please slow down", retryAfter, nil)
}
