package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageRateLimiter paces outbound messages per gateway session so one busy
// tenant cannot exhaust the shared gateway quota.
type MessageRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*sessionLimiter
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
}

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewMessageRateLimiter allows perSecond messages per session with the given burst.
// A non-positive rate disables limiting.
func NewMessageRateLimiter(perSecond float64, burst int) *MessageRateLimiter {
	r := rate.Limit(perSecond)
	if perSecond <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &MessageRateLimiter{
		limiters: make(map[string]*sessionLimiter),
		rate:     r,
		burst:    burst,
		idleTTL:  10 * time.Minute,
	}
}

func (rl *MessageRateLimiter) get(sessionID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	sl, ok := rl.limiters[sessionID]
	if !ok {
		sl = &sessionLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[sessionID] = sl
	}
	sl.lastUsed = now

	// Opportunistic sweep instead of a background goroutine.
	for id, other := range rl.limiters {
		if now.Sub(other.lastUsed) > rl.idleTTL {
			delete(rl.limiters, id)
		}
	}
	return sl.limiter
}

// Wait blocks until the session may send, or ctx is done.
func (rl *MessageRateLimiter) Wait(ctx context.Context, sessionID string) error {
	return rl.get(sessionID).Wait(ctx)
}

// Allow consumes a token without blocking.
func (rl *MessageRateLimiter) Allow(sessionID string) bool {
	return rl.get(sessionID).Allow()
}

// Reset drops the state for one session.
func (rl *MessageRateLimiter) Reset(sessionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, sessionID)
}

// Stats returns limiter statistics for the admin API.
func (rl *MessageRateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := map[string]interface{}{
		"active_sessions": len(rl.limiters),
		"rate":            "unlimited",
		"burst":           rl.burst,
	}
	if rl.rate != rate.Inf {
		stats["rate"] = float64(rl.rate)
	}
	return stats
}
