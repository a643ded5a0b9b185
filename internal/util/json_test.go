package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSON(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		data, err := MarshalJSON(map[string]string{"type": "pong"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"pong"}`, string(data))
	})

	t.Run("UnencodableValue", func(t *testing.T) {
		_, err := MarshalJSON(make(chan int))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JSON marshal error")
	})
}
