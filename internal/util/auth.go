package util

import (
	"errors"
	"strings"

	"github.com/real-rm/privchat/internal/constants"
)

var (
	// ErrMissingAuthHeader is returned when the Authorization header is missing
	ErrMissingAuthHeader = errors.New("missing Authorization header")
	// ErrInvalidAuthHeader is returned when the Authorization header format is invalid
	ErrInvalidAuthHeader = errors.New("invalid Authorization header format")
)

// ExtractBearerToken extracts the JWT token from an Authorization header.
// It expects the format "Bearer <token>" and returns the token part.
//
// Returns:
//   - token string if successful
//   - error if header is missing or malformed
//
// Example:
//
//	token, err := util.ExtractBearerToken(authHeader)
//	if err != nil {
//	    return err
//	}
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	// Check for "Bearer " prefix
	if len(authHeader) <= constants.BearerPrefixLength ||
		authHeader[:constants.BearerPrefixLength] != constants.BearerPrefix {
		return "", ErrInvalidAuthHeader
	}

	token := authHeader[constants.BearerPrefixLength:]
	if token == "" {
		return "", ErrInvalidAuthHeader
	}

	return token, nil
}

// ContainsWeakPattern checks if a string contains any weak patterns.
// This is used for password and secret validation.
//
// Example:
//
//	if util.ContainsWeakPattern(secret, weakSecrets) {
//	    return errors.New("secret contains weak pattern")
//	}
func ContainsWeakPattern(s string, weakPatterns []string) (bool, string) {
	lowerS := strings.ToLower(s)
	for _, pattern := range weakPatterns {
		if strings.Contains(lowerS, pattern) {
			return true, pattern
		}
	}
	return false, ""
}
