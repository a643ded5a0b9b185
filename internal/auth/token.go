// Package auth implements token issuance, verification and refresh token
// lifecycle management.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/real-rm/privchat/internal/constants"
	"github.com/real-rm/privchat/internal/metrics"
)

// ErrInvalidToken is returned for every verification failure. Malformed,
// expired, wrongly signed and wrongly typed tokens are deliberately
// indistinguishable to the caller.
var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and verifies HS256-signed access and refresh tokens
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a token service with the given signing secret and
// lifetimes. Zero lifetimes fall back to the defaults.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = constants.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = constants.DefaultRefreshTokenTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// RefreshTTL returns the configured refresh token lifetime
func (ts *TokenService) RefreshTTL() time.Duration {
	return ts.refreshTTL
}

// IssueAccess signs a short-lived access token for the identity
func (ts *TokenService) IssueAccess(email string) (string, error) {
	token, err := ts.issue(email, constants.TokenTypeAccess, ts.accessTTL)
	if err != nil {
		return "", err
	}
	metrics.TokensIssued.WithLabelValues(constants.TokenTypeAccess).Inc()
	return token, nil
}

// IssueRefresh signs a long-lived refresh token for the identity
func (ts *TokenService) IssueRefresh(email string) (string, error) {
	token, err := ts.issue(email, constants.TokenTypeRefresh, ts.refreshTTL)
	if err != nil {
		return "", err
	}
	metrics.TokensIssued.WithLabelValues(constants.TokenTypeRefresh).Inc()
	return token, nil
}

func (ts *TokenService) issue(email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"email": email,
		"type":  tokenType,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return signed, nil
}

// VerifyAccess verifies an access token and returns the identity it carries
func (ts *TokenService) VerifyAccess(tokenString string) (string, error) {
	return ts.verify(tokenString, constants.TokenTypeAccess)
}

// VerifyRefresh verifies a refresh token and returns the identity it carries
func (ts *TokenService) VerifyRefresh(tokenString string) (string, error) {
	return ts.verify(tokenString, constants.TokenTypeRefresh)
}

// verify parses and validates a token, enforcing the signing method and the
// type claim. Every failure collapses to ErrInvalidToken.
func (ts *TokenService) verify(tokenString, wantType string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	tokenType, _ := mapClaims["type"].(string)
	if tokenType != wantType {
		return "", ErrInvalidToken
	}

	email, _ := mapClaims["email"].(string)
	if email == "" {
		return "", ErrInvalidToken
	}

	return email, nil
}
