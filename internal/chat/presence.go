// Package chat implements the connection-routing and delivery core of the
// messaging relay: the presence registry that maps conversation directions
// to live duplex connections, the envelope protocol spoken over those
// connections, and the per-session orchestration that ties them to the
// message store.
package chat

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn is the duplex-channel handle the registry holds for a live session.
// *websocket.Conn satisfies it; tests substitute in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// pairKey addresses one direction of a conversation. A user connected to
// talk to a peer registers under (self, peer); the peer's own connection,
// if any, lives under the reversed key.
type pairKey struct {
	self string
	peer string
}

// Registry is the process-wide presence table: at most one live connection
// per ordered direction. All methods are safe for concurrent use; the
// internal map is never exposed.
type Registry struct {
	mu    sync.Mutex
	conns map[pairKey]Conn
}

// NewRegistry returns an empty presence table.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[pairKey]Conn)}
}

// Connect registers conn under (self, peer). If a connection was already
// registered for that exact direction it is replaced and returned; the
// caller owns closing the superseded handle.
func (r *Registry) Connect(conn Conn, self, peer string) (superseded Conn) {
	key := pairKey{self, peer}
	r.mu.Lock()
	defer r.mu.Unlock()
	superseded = r.conns[key]
	r.conns[key] = conn
	return superseded
}

// Disconnect removes the registration for (self, peer) if present. Safe to
// call repeatedly. When conn is non-nil the registration is only removed if
// it still points at conn, so a session torn down after being superseded
// cannot evict its replacement.
func (r *Registry) Disconnect(conn Conn, self, peer string) {
	key := pairKey{self, peer}
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn != nil && r.conns[key] != conn {
		return
	}
	delete(r.conns, key)
}

// Route delivers event to both directions of the {a, b} pair: the
// connection registered as (a, b) and, independently, the one registered as
// (b, a). A write failure on one direction is logged and never blocks the
// other attempt.
func (r *Registry) Route(event any, a, b string) {
	r.mu.Lock()
	targets := make([]Conn, 0, 2)
	if c, ok := r.conns[pairKey{a, b}]; ok {
		targets = append(targets, c)
	}
	if c, ok := r.conns[pairKey{b, a}]; ok {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.WriteJSON(event); err != nil {
			log.Warn().
				Err(err).
				Str("pair_a", a).
				Str("pair_b", b).
				Msg("presence: fan-out write failed")
		}
	}
}

// Send delivers event only to the connection registered as (self, peer),
// reporting whether a registration existed. Used for requester-only replies.
func (r *Registry) Send(event any, self, peer string) bool {
	r.mu.Lock()
	c, ok := r.conns[pairKey{self, peer}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := c.WriteJSON(event); err != nil {
		log.Warn().
			Err(err).
			Str("self", self).
			Str("peer", peer).
			Msg("presence: direct write failed")
	}
	return true
}

// Len reports the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
