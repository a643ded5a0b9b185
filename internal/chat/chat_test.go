package chat

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestRoomID(t *testing.T) {
	assert.Equal(t, "alice@example.com_bob@example.com", RoomID("alice@example.com", "bob@example.com"))
	assert.Equal(t, "alice@example.com_bob@example.com", RoomID("bob@example.com", "alice@example.com"))

	// Self-conversation is a valid, stable identifier
	assert.Equal(t, "a@x.com_a@x.com", RoomID("a@x.com", "a@x.com"))
}

func TestRoomID_Ordering(t *testing.T) {
	// Lexicographic order decides which side comes first
	assert.Equal(t, "a_b", RoomID("b", "a"))
	assert.Equal(t, "A_a", RoomID("a", "A"))
	assert.Equal(t, "1_a", RoomID("a", "1"))
}

// The room identifier is symmetric and deterministic for any pair.
func TestProperty_RoomIDSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("RoomID(a,b) == RoomID(b,a)", prop.ForAll(
		func(a, b string) bool {
			return RoomID(a, b) == RoomID(b, a)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("identifier contains both participants", prop.ForAll(
		func(a, b string) bool {
			if a == "" || b == "" {
				return true
			}
			id := RoomID(a, b)
			return strings.Contains(id, a) && strings.Contains(id, b)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
