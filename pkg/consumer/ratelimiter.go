package consumer

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds how many jobs may start per time window, independent of
// how many run concurrently.
type RateLimiter struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	count     int
	windowEnd time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window}
}

// Wait blocks until a start slot is available in the current window, or until
// the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		if now.After(rl.windowEnd) {
			rl.windowEnd = now.Add(rl.window)
			rl.count = 0
		}
		if rl.count < rl.max {
			rl.count++
			rl.mu.Unlock()
			return nil
		}
		wait := rl.windowEnd.Sub(now)
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
