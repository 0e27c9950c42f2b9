package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTokenBucket_Burst_S5 mirrors spec scenario S5: capacity 2, six
// sequential acquires on one worker, total elapsed time (real time plus
// simulated sleep) >= 2s (two refills beyond the initial full bucket).
func TestTokenBucket_Burst_S5(t *testing.T) {
	start := time.Now()
	b := NewTokenBucket(2)
	var slept time.Duration
	b.sleepFn = func(d time.Duration) {
		slept += d
		b.lastRefill = b.lastRefill.Add(-d) // simulate time passing without a real sleep
	}

	for i := 0; i < 6; i++ {
		b.Acquire()
	}

	assert.GreaterOrEqual(t, time.Since(start)+slept, 2*time.Second)
	assert.Equal(t, 6, b.TotalAcquires())
}

// TestTokenBucket_Acquire_NeverExceedsCapacity is property 9's bound: the
// refill never pushes tokens above capacity.
func TestTokenBucket_Acquire_NeverExceedsCapacity(t *testing.T) {
	b := NewTokenBucket(3)
	b.sleepFn = func(time.Duration) {}
	b.lastRefill = time.Now().Add(-10 * time.Second)

	b.Acquire()

	b.mu.Lock()
	tokens := b.tokens
	b.mu.Unlock()
	require.LessOrEqual(t, tokens, float64(3))
}

func TestTokenBucket_DoesNotBlockWhenTokensAvailable(t *testing.T) {
	b := NewTokenBucket(5)
	called := false
	b.sleepFn = func(time.Duration) { called = true }

	b.Acquire()

	assert.False(t, called)
}
