package hub

import (
	"sync"
	"time"
)

// RateLimiter caps inbound messages per connection with a sliding one-minute
// window. A limit of 0 disables it entirely.
type RateLimiter struct {
	mu    sync.Mutex
	limit int
	conns map[string]*connWindow
}

type connWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter with the given per-minute cap.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit: limit,
		conns: make(map[string]*connWindow),
	}
}

// Allow reports whether the connection may send another message this minute.
func (rl *RateLimiter) Allow(connID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.conns[connID]
	if !ok || now.Sub(w.windowStart) >= time.Minute {
		rl.conns[connID] = &connWindow{count: 1, windowStart: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Forget drops a connection's window, called when it disconnects.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.conns, connID)
}

// Cleanup removes windows that have been idle for several minutes; called
// periodically by the hub so churned connections do not accumulate.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connID, w := range rl.conns {
		if now.Sub(w.windowStart) > 5*time.Minute {
			delete(rl.conns, connID)
		}
	}
}
