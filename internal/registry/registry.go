// Package registry tracks the single live WebSocket connection per identity
// and provides best-effort delivery and broadcast over those connections.
package registry

import (
	"sync"

	"github.com/real-rm/golog"

	"github.com/real-rm/privchat/internal/metrics"
)

// Conn is the transport surface the registry needs from a connection.
// Send must never block; Close must tolerate being called more than once.
type Conn interface {
	// Send enqueues a payload for delivery. Returns false when the
	// connection cannot accept it (closing or buffer full).
	Send(payload []byte) bool
	// Close initiates connection shutdown with a close code and reason.
	Close(code int, reason string)
}

// Registry maps identities to their single live connection
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	logger *golog.Logger
}

// New creates an empty registry
func New(logger *golog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Register installs conn as the identity's connection. Any previous
// connection for the same identity is closed with the superseded reason and
// returned. Last writer wins under concurrent registration.
func (r *Registry) Register(identity string, conn Conn, supersededCode int, supersededReason string) Conn {
	r.mu.Lock()
	prev := r.conns[identity]
	r.conns[identity] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		metrics.ConnectionsSuperseded.Inc()
		r.logger.Info("Connection superseded", "user", identity)
		prev.Close(supersededCode, supersededReason)
	}

	return prev
}

// Unregister removes the identity's entry only if it still maps to conn.
// A connection superseded by a newer one therefore cannot evict its
// successor during its own teardown. Returns true when the entry was removed.
func (r *Registry) Unregister(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[identity]
	if !ok || current != conn {
		return false
	}

	delete(r.conns, identity)
	return true
}

// Lookup returns the identity's live connection, if any
func (r *Registry) Lookup(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[identity]
	return conn, ok
}

// SendTo delivers a payload to the identity if connected. A connection that
// cannot accept the payload is removed so it does not shadow a future one.
// Returns true when the payload was enqueued.
func (r *Registry) SendTo(identity string, payload []byte) bool {
	r.mu.RLock()
	conn, ok := r.conns[identity]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	if !conn.Send(payload) {
		r.logger.Warn("Dropping unresponsive connection", "user", identity)
		r.Unregister(identity, conn)
		return false
	}

	metrics.MessagesSent.Inc()
	return true
}

// BroadcastExcept sends a payload to every connection except the named
// identity. Delivery failures remove the failing recipient and never abort
// the remaining sends.
func (r *Registry) BroadcastExcept(identity string, payload []byte) {
	r.mu.RLock()
	targets := make(map[string]Conn, len(r.conns))
	for id, conn := range r.conns {
		if id != identity {
			targets[id] = conn
		}
	}
	r.mu.RUnlock()

	for id, conn := range targets {
		if !conn.Send(payload) {
			r.logger.Warn("Dropping unresponsive connection during broadcast", "user", id)
			r.Unregister(id, conn)
			continue
		}
		metrics.MessagesSent.Inc()
	}
}

// Online returns the identities with a live connection
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every connection with the given code and reason. Entries
// are not removed here; each connection's teardown unregisters itself, so
// Count drains to zero as the close completes. Used during shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Close(code, reason)
	}
}
