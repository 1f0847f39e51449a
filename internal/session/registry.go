// Package session binds authenticated user identities to live WebSocket
// connections. The Registry is the single source of truth for "can I push to
// user X right now"; it never exposes its map to callers.
package session

import (
	"errors"
	"log"
	"sync"

	"github.com/ayushgarg2005/Chat-Application/internal/ws"
)

// ErrNotOnline is returned by Push when the target user has no bound channel.
var ErrNotOnline = errors.New("session: user not online")

// Registry maps a user identity to exactly one live connection. All
// mutations and lookups are serialized behind a read-write mutex so that a
// bind racing an unbind or a broadcast can never observe a half-updated map.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]*ws.Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int64]*ws.Connection)}
}

// Bind associates userID with conn, replacing any previous entry for that
// identity (last-writer-wins). The superseded connection, if any, is
// returned; it is not closed — its eventual disconnect unbinds nothing
// thanks to the identity check in Unbind.
func (r *Registry) Bind(userID int64, conn *ws.Connection) *ws.Connection {
	r.mu.Lock()
	prev := r.byUser[userID]
	r.byUser[userID] = conn
	r.mu.Unlock()

	conn.SetUserID(userID)
	return prev
}

// Unbind removes the registry entry for userID, but only if it still points
// at exactly this connection. This guards against a stale close racing a new
// bind: when a user reconnects and the old channel closes afterwards, the
// fresh binding survives. Returns true if the entry was removed.
func (r *Registry) Unbind(userID int64, conn *ws.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] != conn {
		return false
	}
	delete(r.byUser, userID)
	return true
}

// Get returns the live connection for userID, or nil if the user has no
// bound channel.
func (r *Registry) Get(userID int64) *ws.Connection {
	r.mu.RLock()
	conn := r.byUser[userID]
	r.mu.RUnlock()
	return conn
}

// IsBound reports whether userID currently has a live connection.
func (r *Registry) IsBound(userID int64) bool {
	return r.Get(userID) != nil
}

// Push writes data to userID's connection if one is bound. A missing or
// unwritable channel is a best-effort drop: the error is logged and returned,
// but callers treat it as non-fatal to their own request.
func (r *Registry) Push(userID int64, data []byte) error {
	conn := r.Get(userID)
	if conn == nil {
		return ErrNotOnline
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("session: push to user=%d failed: %v", userID, err)
		return err
	}
	return nil
}

// BroadcastExcept writes data to every bound connection except the one
// belonging to exceptUserID. Write failures on individual connections are
// logged and skipped; dead channels are reaped by the transport layer.
func (r *Registry) BroadcastExcept(exceptUserID int64, data []byte) {
	r.mu.RLock()
	conns := make([]*ws.Connection, 0, len(r.byUser))
	for userID, conn := range r.byUser {
		if userID == exceptUserID {
			continue
		}
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(data); err != nil {
			log.Printf("session: broadcast to user=%d failed: %v", conn.UserID(), err)
		}
	}
}

// Count returns the number of bound identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byUser)
	r.mu.RUnlock()
	return n
}
