package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-rm/privchat/internal/constants"
)

func TestSanitizeContent(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"Plain", "hello world", "hello world"},
		{"TrimsWhitespace", "  hello  ", "hello"},
		{"StripsControlChars", "hel\x00lo\x1f", "hello"},
		{"StripsDelete", "hel\x7flo", "hello"},
		{"StripsTabsAndNewlines", "a\tb\nc\r", "abc"},
		{"KeepsUnicode", "héllo wörld 你好", "héllo wörld 你好"},
		{"KeepsEmoji", "hi 👋", "hi 👋"},
		{"OnlyControls", "\x00\x01\x02", ""},
		{"Empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeContent(tc.input))
		})
	}
}

func TestValidateContent(t *testing.T) {
	t.Run("ValidContent", func(t *testing.T) {
		clean, err := ValidateContent("  hello  ")
		require.NoError(t, err)
		assert.Equal(t, "hello", clean)
	})

	t.Run("EmptyRejected", func(t *testing.T) {
		_, err := ValidateContent("")
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("WhitespaceOnlyRejected", func(t *testing.T) {
		_, err := ValidateContent("   \t\n  ")
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("ControlCharsOnlyRejected", func(t *testing.T) {
		_, err := ValidateContent("\x00\x01\x02")
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("MaxLengthAccepted", func(t *testing.T) {
		content := strings.Repeat("a", constants.MaxMessageLength)
		clean, err := ValidateContent(content)
		require.NoError(t, err)
		assert.Equal(t, content, clean)
	})

	t.Run("OverMaxLengthRejected", func(t *testing.T) {
		content := strings.Repeat("a", constants.MaxMessageLength+1)
		_, err := ValidateContent(content)
		assert.ErrorIs(t, err, ErrContentTooLong)
	})

	t.Run("LengthCountsRunesNotBytes", func(t *testing.T) {
		// Multi-byte runes at the limit must still be accepted
		content := strings.Repeat("你", constants.MaxMessageLength)
		_, err := ValidateContent(content)
		assert.NoError(t, err)
	})

	t.Run("ValidationErrorCarriesField", func(t *testing.T) {
		_, err := ValidateContent("")
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "content", vErr.Field)
	})
}

func TestFrame_ValidateInbound(t *testing.T) {
	t.Run("MessageRequiresReceiver", func(t *testing.T) {
		frame := &Frame{Type: TypeMessage, Content: "hello"}
		assert.Error(t, frame.ValidateInbound())

		frame.Receiver = "bob@example.com"
		assert.NoError(t, frame.ValidateInbound())
	})

	t.Run("TypingRequiresReceiver", func(t *testing.T) {
		frame := &Frame{Type: TypeTyping, IsTyping: true}
		assert.Error(t, frame.ValidateInbound())

		frame.Receiver = "bob@example.com"
		assert.NoError(t, frame.ValidateInbound())
	})

	t.Run("ReadRequiresSender", func(t *testing.T) {
		frame := &Frame{Type: TypeRead}
		assert.Error(t, frame.ValidateInbound())

		frame.Sender = "alice@example.com"
		assert.NoError(t, frame.ValidateInbound())
	})

	t.Run("PingHasNoRequiredFields", func(t *testing.T) {
		frame := &Frame{Type: TypePing}
		assert.NoError(t, frame.ValidateInbound())
	})
}
