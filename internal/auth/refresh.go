package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/real-rm/gohelper"
	"github.com/real-rm/golog"

	"github.com/real-rm/privchat/internal/constants"
	"github.com/real-rm/privchat/internal/metrics"
	"github.com/real-rm/privchat/internal/storage"
)

// TokenPair bundles a freshly issued access and refresh token
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshStore persists the durable records backing refresh tokens.
// RevokeRefreshToken flips an unrevoked record to revoked and reports whether
// this call made the change; concurrent revocations of the same record see
// exactly one true.
type RefreshStore interface {
	InsertRefreshToken(ctx context.Context, doc *storage.RefreshTokenDocument) error
	FindRefreshToken(ctx context.Context, token, userEmail string) (*storage.RefreshTokenDocument, error)
	RevokeRefreshToken(ctx context.Context, token, userEmail string) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userEmail string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// RefreshManager pairs the stateless TokenService with durable refresh token
// records so tokens can be rotated and revoked server-side.
type RefreshManager struct {
	tokens *TokenService
	store  RefreshStore
	logger *golog.Logger

	// Sweep goroutine management
	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
	sweepWg       sync.WaitGroup
}

// NewRefreshManager creates a refresh token manager
func NewRefreshManager(tokens *TokenService, store RefreshStore, logger *golog.Logger) *RefreshManager {
	return &RefreshManager{
		tokens:        tokens,
		store:         store,
		logger:        logger,
		sweepInterval: constants.TokenSweepInterval,
		stopSweep:     make(chan struct{}),
	}
}

// IssuePair signs a new access/refresh pair for the identity and persists the
// refresh record. Used at login.
func (rm *RefreshManager) IssuePair(ctx context.Context, email string) (*TokenPair, error) {
	access, err := rm.tokens.IssueAccess(email)
	if err != nil {
		return nil, err
	}

	refresh, err := rm.tokens.IssueRefresh(email)
	if err != nil {
		return nil, err
	}

	if err := rm.persist(ctx, email, refresh); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// persist stores the durable record backing a refresh token
func (rm *RefreshManager) persist(ctx context.Context, email, refresh string) error {
	tokenID, err := gohelper.GenUUID(constants.RefreshTokenIDEntropy)
	if err != nil {
		return fmt.Errorf("failed to generate token id: %w", err)
	}

	now := time.Now().UTC()
	doc := &storage.RefreshTokenDocument{
		TokenID:      tokenID,
		UserEmail:    email,
		RefreshToken: refresh,
		CreatedAt:    now,
		ExpiresAt:    now.Add(rm.tokens.RefreshTTL()),
		IsRevoked:    false,
	}
	if err := rm.store.InsertRefreshToken(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return nil
}

// Validate checks that a presented refresh token is live: signature and type
// valid, record present, not revoked, not expired. An expired record found
// unrevoked is revoked here as a side effect.
func (rm *RefreshManager) Validate(ctx context.Context, refresh string) (string, error) {
	email, err := rm.tokens.VerifyRefresh(refresh)
	if err != nil {
		return "", ErrInvalidToken
	}

	doc, err := rm.store.FindRefreshToken(ctx, refresh, email)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}

	if doc.IsRevoked {
		return "", ErrInvalidToken
	}

	if time.Now().UTC().After(doc.ExpiresAt) {
		// Lazy expiry: flag the stale record so later lookups fail fast
		if _, revokeErr := rm.store.RevokeRefreshToken(ctx, refresh, email); revokeErr != nil {
			rm.logger.Warn("Failed to revoke expired refresh token",
				"user", email, "error", revokeErr)
		}
		return "", ErrInvalidToken
	}

	return email, nil
}

// Rotate exchanges a live refresh token for a new access/refresh pair. The old
// token is revoked with a conditional write; when two rotations race on the
// same token exactly one wins and the loser gets ErrInvalidToken.
func (rm *RefreshManager) Rotate(ctx context.Context, refresh string) (*TokenPair, error) {
	email, err := rm.Validate(ctx, refresh)
	if err != nil {
		metrics.TokenRotations.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidToken
	}

	won, err := rm.store.RevokeRefreshToken(ctx, refresh, email)
	if err != nil {
		metrics.TokenRotations.WithLabelValues("error").Inc()
		return nil, err
	}
	if !won {
		// Lost the race to a concurrent rotation of the same token
		metrics.TokenRotations.WithLabelValues("lost_race").Inc()
		return nil, ErrInvalidToken
	}

	pair, err := rm.IssuePair(ctx, email)
	if err != nil {
		metrics.TokenRotations.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.TokenRotations.WithLabelValues("rotated").Inc()
	return pair, nil
}

// RevokeAll revokes every live refresh token for the identity and returns the
// number revoked. Used at logout.
func (rm *RefreshManager) RevokeAll(ctx context.Context, email string) (int64, error) {
	count, err := rm.store.RevokeAllRefreshTokens(ctx, email)
	if err != nil {
		return 0, err
	}
	metrics.TokensRevoked.Add(float64(count))
	return count, nil
}

// SweepExpired deletes refresh token records past their expiry
func (rm *RefreshManager) SweepExpired(ctx context.Context) (int64, error) {
	return rm.store.DeleteExpiredRefreshTokens(ctx)
}

// StartSweep starts a background goroutine that periodically deletes expired
// refresh token records. A failing sweep is logged and retried on the next
// tick.
func (rm *RefreshManager) StartSweep() {
	rm.sweepWg.Add(1)
	go func() {
		defer rm.sweepWg.Done()
		ticker := time.NewTicker(rm.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), constants.LongContextTimeout)
				deleted, err := rm.SweepExpired(ctx)
				cancel()
				if err != nil {
					rm.logger.Warn("Refresh token sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					rm.logger.Info("Swept expired refresh tokens", "deleted", deleted)
				}
			case <-rm.stopSweep:
				return
			}
		}
	}()
}

// StopSweep stops the sweep goroutine and waits for it to finish.
// Safe to call more than once.
func (rm *RefreshManager) StopSweep() {
	rm.stopOnce.Do(func() {
		close(rm.stopSweep)
	})
	rm.sweepWg.Wait()
}
