package api

import (
	"sync"
	"time"
)

const (
	defaultRateLimit  = 100
	defaultRateWindow = time.Minute
)

// RateLimiter implements per-client rate limiting
// ARCHITECTURAL DISCOVERY: Per-client state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ClientLimit
	limit   int
	window  time.Duration
	now     func() time.Time
}

// ClientLimit tracks rate limiting for a single client
// FUNCTIONAL DISCOVERY: Fixed window reset gives an exact requests-per-window limit
type ClientLimit struct {
	requestCount int
	windowStart  time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window and
// client. Non-positive values fall back to 100 per minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		clients: make(map[string]*ClientLimit),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow checks if client can make another request in the current window
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[clientID]
	if !exists {
		// FUNCTIONAL DISCOVERY: First request always allowed, initialize tracking
		rl.clients[clientID] = &ClientLimit{
			requestCount: 1,
			windowStart:  now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= rl.window {
		limit.requestCount = 1
		limit.windowStart = now
		return true
	}

	if limit.requestCount >= rl.limit {
		return false
	}

	limit.requestCount++
	return true
}

// Cleanup removes client entries idle for more than five windows.
// The jobs scheduler calls it periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for clientID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, clientID)
		}
	}
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
