package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUpToMaxPerWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(ctx), "start %d should be allowed", i+1)
	}
	// Fourth start in the window blocks until the context expires.
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}

func TestRateLimiterNewWindowResetsBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	require.NoError(t, rl.Wait(context.Background()))
	require.NoError(t, rl.Wait(context.Background()))

	// Manually expire the window.
	rl.mu.Lock()
	rl.windowEnd = time.Now().Add(-time.Second)
	rl.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, rl.Wait(ctx), "new window should allow starts again")
}

func TestRateLimiterWaitBlocksUntilNextWindow(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)

	require.NoError(t, rl.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond,
		"second start must wait for the next window")
}

func TestRateLimiterWaitHonorsCancellation(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
