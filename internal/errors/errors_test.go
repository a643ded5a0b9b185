package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatError_Error(t *testing.T) {
	err := NewValidationError(ErrCodeEmptyMessage, "Message content is empty", nil)
	assert.Equal(t, "EMPTY_MESSAGE: Message content is empty", err.Error())

	cause := stderrors.New("boom")
	withCause := NewServiceError(ErrCodeDatabaseError, "Database operation failed", cause)
	assert.Contains(t, withCause.Error(), "DATABASE_ERROR")
	assert.Contains(t, withCause.Error(), "boom")
}

func TestChatError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := ErrDatabaseError(cause)

	assert.ErrorIs(t, err, cause)

	var chatErr *ChatError
	require.True(t, stderrors.As(err, &chatErr))
	assert.Equal(t, ErrCodeDatabaseError, chatErr.Code)
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, CategoryAuth, ErrInvalidToken(nil).Category)
	assert.Equal(t, CategoryAuth, ErrInvalidCredentials().Category)
	assert.Equal(t, CategoryAuth, ErrConfirmationRequired().Category)
	assert.Equal(t, CategoryValidation, ErrEmptyMessage().Category)
	assert.Equal(t, CategoryValidation, ErrMessageTooLong(6000, 5000).Category)
	assert.Equal(t, CategoryService, ErrDatabaseError(nil).Category)
	assert.Equal(t, CategoryRateLimit, ErrTooManyRequests(1000).Category)
}

func TestRecoverability(t *testing.T) {
	// Auth errors tear the connection down; everything else lets it live
	assert.True(t, ErrInvalidToken(nil).IsFatal())
	assert.False(t, ErrEmptyMessage().IsFatal())
	assert.False(t, ErrMessageTooLong(6000, 5000).IsFatal())
	assert.False(t, ErrDatabaseError(nil).IsFatal())
	assert.False(t, ErrTooManyRequests(1000).IsFatal())
}

func TestErrMessageTooLong(t *testing.T) {
	err := ErrMessageTooLong(6000, 5000)
	assert.Equal(t, ErrCodeMessageTooLong, err.Code)
	assert.Contains(t, err.Message, "6000")
	assert.Contains(t, err.Message, "5000")
}

func TestErrTooManyRequests(t *testing.T) {
	err := ErrTooManyRequests(2500)
	assert.Equal(t, 2500, err.RetryAfter)
	assert.True(t, err.Recoverable)
}

func TestToErrorInfo(t *testing.T) {
	err := ErrTooManyRequests(1500)
	info := err.ToErrorInfo()

	assert.Equal(t, "TOO_MANY_REQUESTS", info.Code)
	assert.Equal(t, err.Message, info.Message)
	assert.True(t, info.Recoverable)
	assert.Equal(t, 1500, info.RetryAfter)
}
