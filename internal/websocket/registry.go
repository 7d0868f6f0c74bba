package websocket

import (
	"sync"

	"liverelay/pkg/interfaces"
)

// Registry tracks every live connection by its server-assigned id. Pure
// connection bookkeeping: session and room membership live in their own
// stores, keyed by these ids.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
	}
}

// Register adds a connection. Connection ids are server-assigned UUIDs, so
// collisions do not happen in practice; an id already present is replaced.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if conn.ID() == "" {
		return ErrEmptyConnID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes a connection. Idempotent; only removes the exact
// instance that is registered, so a stale cleanup cannot evict a replacement.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, ok := r.connections[conn.ID()]; ok && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// Get returns the connection for an id with O(1) lookup.
func (r *Registry) Get(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[connID]
	return conn, ok
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Stats returns registry statistics for the ops surface.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"open_connections": len(r.connections),
	}
}
