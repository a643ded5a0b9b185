package ratelimit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any client making requests within a single window, the limiter admits
// exactly min(requests, limit) and rejects the rest.
func TestProperty_SlidingWindowAdmission(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("admits exactly min(requests, limit)", prop.ForAll(
		func(clientID string, limit int, numRequests int) bool {
			if clientID == "" || limit <= 0 || limit > 500 || numRequests <= 0 || numRequests > 1000 {
				return true
			}

			l := NewLimiter(10*time.Second, limit)

			allowed := 0
			for i := 0; i < numRequests; i++ {
				if l.Allow(clientID) {
					allowed++
				}
			}

			want := numRequests
			if want > limit {
				want = limit
			}
			return allowed == want
		},
		gen.AlphaString(),
		gen.IntRange(1, 500),
		gen.IntRange(1, 1000),
	))

	properties.Property("distinct clients never share a window", prop.ForAll(
		func(limit int) bool {
			if limit <= 0 || limit > 100 {
				return true
			}

			l := NewLimiter(10*time.Second, limit)

			for i := 0; i < limit; i++ {
				if !l.Allow("first") {
					return false
				}
			}
			// First client is exhausted; second must still get its full budget
			for i := 0; i < limit; i++ {
				if !l.Allow("second") {
					return false
				}
			}
			return !l.Allow("first") && !l.Allow("second")
		},
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
