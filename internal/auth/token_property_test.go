package auth

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Any non-empty identity round-trips through issue and verify, and a token
// issued for one kind never verifies as the other.
func TestProperty_TokenRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	ts := NewTokenService(testSecret, 1*time.Hour, 24*time.Hour)

	properties.Property("access token carries its identity", prop.ForAll(
		func(email string) bool {
			if email == "" {
				return true
			}
			token, err := ts.IssueAccess(email)
			if err != nil {
				return false
			}
			got, err := ts.VerifyAccess(token)
			return err == nil && got == email
		},
		gen.AlphaString(),
	))

	properties.Property("kinds never cross-verify", prop.ForAll(
		func(email string) bool {
			if email == "" {
				return true
			}
			access, err := ts.IssueAccess(email)
			if err != nil {
				return false
			}
			refresh, err := ts.IssueRefresh(email)
			if err != nil {
				return false
			}
			_, errA := ts.VerifyRefresh(access)
			_, errR := ts.VerifyAccess(refresh)
			return errA == ErrInvalidToken && errR == ErrInvalidToken
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
