// Package ratelimit provides sliding-window rate limiting for the HTTP and
// WebSocket surfaces. Each traffic class owns an independent Limiter, and
// within a Limiter every client has its own bucket with its own lock, so one
// client's window scan never blocks admission for another.
package ratelimit

import (
	"sync"
	"time"

	"github.com/real-rm/privchat/internal/constants"
)

// bucket holds one client's event timestamps behind its own mutex
type bucket struct {
	mu     sync.Mutex
	events []time.Time
	// evicted marks a bucket removed from the map while a caller still
	// holds a reference to it. Such callers must refetch.
	evicted bool
}

// Limiter limits the rate of events per client using a sliding window.
// The map mutex only guards bucket lookup and insertion; all timestamp
// filtering happens under the per-client bucket mutex.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	window  time.Duration
	limit   int

	// Cleanup goroutine management
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopMu          sync.Mutex
	cleanupWg       sync.WaitGroup
}

// NewLimiter creates a new sliding-window rate limiter
// window: time window for rate limiting (e.g., 1 minute)
// limit: maximum number of events allowed in the window
func NewLimiter(window time.Duration, limit int) *Limiter {
	return &Limiter{
		buckets:         make(map[string]*bucket),
		window:          window,
		limit:           limit,
		cleanupInterval: constants.DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
}

// bucketFor returns the client's bucket, creating it if absent
func (l *Limiter) bucketFor(clientID string) *bucket {
	l.mu.RLock()
	b := l.buckets[clientID]
	l.mu.RUnlock()
	if b != nil {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b = l.buckets[clientID]; b == nil {
		b = &bucket{}
		l.buckets[clientID] = b
	}
	return b
}

// Allow checks if an event is allowed based on rate limiting
// Returns true if allowed, false if rate limit exceeded
func (l *Limiter) Allow(clientID string) bool {
	for {
		b := l.bucketFor(clientID)
		b.mu.Lock()
		if b.evicted {
			// Cleanup removed this bucket between lookup and lock
			b.mu.Unlock()
			continue
		}

		now := time.Now()
		cutoff := now.Add(-l.window)

		recent := b.events[:0]
		for _, t := range b.events {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}

		if len(recent) >= l.limit {
			b.events = recent
			b.mu.Unlock()
			return false
		}

		b.events = append(recent, now)
		b.mu.Unlock()
		return true
	}
}

// GetRetryAfter returns the time in milliseconds until the next event is allowed
func (l *Limiter) GetRetryAfter(clientID string) int {
	l.mu.RLock()
	b := l.buckets[clientID]
	l.mu.RUnlock()
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) < l.limit {
		return 0
	}

	now := time.Now()
	cutoff := now.Add(-l.window)

	var oldestInWindow time.Time
	for _, t := range b.events {
		if t.After(cutoff) {
			if oldestInWindow.IsZero() || t.Before(oldestInWindow) {
				oldestInWindow = t
			}
		}
	}

	if oldestInWindow.IsZero() {
		return 0
	}

	// Calculate when the oldest event will expire
	expiresAt := oldestInWindow.Add(l.window)
	retryAfter := expiresAt.Sub(now)

	if retryAfter < 0 {
		return 0
	}

	return int(retryAfter.Milliseconds())
}

// Reset clears the rate limit history for a client
func (l *Limiter) Reset(clientID string) {
	l.mu.Lock()
	b := l.buckets[clientID]
	delete(l.buckets, clientID)
	l.mu.Unlock()

	if b != nil {
		b.mu.Lock()
		b.evicted = true
		b.mu.Unlock()
	}
}

// Cleanup removes expired events and evicts idle clients to bound memory.
// Should be called periodically.
func (l *Limiter) Cleanup() {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.RLock()
	snapshot := make(map[string]*bucket, len(l.buckets))
	for clientID, b := range l.buckets {
		snapshot[clientID] = b
	}
	l.mu.RUnlock()

	var idle []string
	for clientID, b := range snapshot {
		b.mu.Lock()
		recent := b.events[:0]
		for _, t := range b.events {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		b.events = recent
		if len(recent) == 0 {
			idle = append(idle, clientID)
		}
		b.mu.Unlock()
	}

	if len(idle) == 0 {
		return
	}

	// Evict under the map write lock, rechecking under the bucket lock so an
	// event recorded since the scan keeps its bucket.
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, clientID := range idle {
		b := l.buckets[clientID]
		if b == nil {
			continue
		}
		b.mu.Lock()
		if len(b.events) == 0 {
			b.evicted = true
			delete(l.buckets, clientID)
		}
		b.mu.Unlock()
	}
}

// StartCleanup starts a background goroutine that periodically cleans up expired events
func (l *Limiter) StartCleanup() {
	l.cleanupWg.Add(1)
	go func() {
		defer l.cleanupWg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-l.stopCleanup:
				return
			}
		}
	}()
}

// TrackedClients returns the number of distinct clients with events in the window
func (l *Limiter) TrackedClients() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// StopCleanup stops the cleanup goroutine and waits for it to finish.
// Safe to call more than once.
func (l *Limiter) StopCleanup() {
	l.stopMu.Lock()
	select {
	case <-l.stopCleanup:
		// Already closed, do nothing
	default:
		close(l.stopCleanup)
	}
	l.stopMu.Unlock()

	l.cleanupWg.Wait()
}
