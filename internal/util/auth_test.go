package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Run("ValidHeader", func(t *testing.T) {
		token, err := ExtractBearerToken("Bearer abc.def.ghi")
		require.NoError(t, err)
		assert.Equal(t, "abc.def.ghi", token)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		_, err := ExtractBearerToken("")
		assert.ErrorIs(t, err, ErrMissingAuthHeader)
	})

	t.Run("WrongScheme", func(t *testing.T) {
		_, err := ExtractBearerToken("Basic dXNlcjpwYXNz")
		assert.ErrorIs(t, err, ErrInvalidAuthHeader)
	})

	t.Run("BearerWithoutToken", func(t *testing.T) {
		_, err := ExtractBearerToken("Bearer ")
		assert.ErrorIs(t, err, ErrInvalidAuthHeader)
	})

	t.Run("LowercaseSchemeRejected", func(t *testing.T) {
		_, err := ExtractBearerToken("bearer abc")
		assert.ErrorIs(t, err, ErrInvalidAuthHeader)
	})
}

func TestContainsWeakPattern(t *testing.T) {
	patterns := []string{"secret", "password", "123456"}

	found, pattern := ContainsWeakPattern("my-SECRET-value", patterns)
	assert.True(t, found)
	assert.Equal(t, "secret", pattern)

	found, _ = ContainsWeakPattern("fGk38sLq91vXz04TbNy72WcRdE65hJmA", patterns)
	assert.False(t, found)
}
