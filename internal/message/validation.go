package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/real-rm/privchat/internal/constants"
)

var (
	// ErrEmptyContent is returned when content is empty after sanitization
	ErrEmptyContent = errors.New("content is empty")
	// ErrContentTooLong is returned when content exceeds the maximum length
	ErrContentTooLong = errors.New("content exceeds maximum length")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SanitizeContent strips ASCII control characters and trims surrounding
// whitespace. HTML escaping is NOT applied here; it belongs at render time.
func SanitizeContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// ValidateContent sanitizes message content and enforces the length rules.
// It returns the sanitized content; the error tells oversized apart from
// empty-after-sanitize so callers can report distinct codes.
func ValidateContent(content string) (string, error) {
	clean := SanitizeContent(content)
	if clean == "" {
		return "", &ValidationError{Field: "content", Message: "content is empty", Err: ErrEmptyContent}
	}
	if n := len([]rune(clean)); n > constants.MaxMessageLength {
		return "", &ValidationError{
			Field:   "content",
			Message: fmt.Sprintf("content length %d exceeds maximum of %d characters", n, constants.MaxMessageLength),
			Err:     ErrContentTooLong,
		}
	}
	return clean, nil
}

// ValidateInbound checks frame fields the protocol loop relies on before any
// side effect runs. Content rules are checked separately by ValidateContent.
func (f *Frame) ValidateInbound() error {
	switch f.Type {
	case TypeMessage:
		if f.Receiver == "" {
			return &ValidationError{Field: "receiver", Message: "receiver is required for message"}
		}
	case TypeTyping:
		if f.Receiver == "" {
			return &ValidationError{Field: "receiver", Message: "receiver is required for typing"}
		}
	case TypeRead:
		if f.Sender == "" {
			return &ValidationError{Field: "sender", Message: "sender is required for read"}
		}
	}
	return nil
}
