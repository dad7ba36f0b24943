// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the routing core from floods.
package server

import (
	"sync"
	"time"

	"github.com/Tyrowin/navychat/internal/chat"
)

type rateLimiter struct {
	mu        sync.Mutex
	clock     chat.Clock
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

// newRateLimiter allows capacity frames per interval with bursts of up to
// capacity. A nil clock uses wall time.
func newRateLimiter(capacity int, interval time.Duration, clock chat.Clock) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if clock == nil {
		clock = chat.SystemClock()
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &rateLimiter{
		clock:     clock,
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: clock.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}
