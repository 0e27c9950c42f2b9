package swarm

import (
	"math"
	"sync"
	"time"
)

// TokenBucket is a single shared, refilling rate limiter (§4.7). Exactly
// one producer (refill on acquire) and many consumers; access is
// serialized by the owner's internal lock.
type TokenBucket struct {
	mu          sync.Mutex
	capacity    float64 // R, tokens/sec
	tokens      float64
	lastRefill  time.Time
	totalAcquires int
	sleepFn     func(time.Duration)
}

// NewTokenBucket creates a bucket with capacity R tokens/sec, starting
// full.
func NewTokenBucket(capacity float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: time.Now(),
		sleepFn:    time.Sleep,
	}
}

// Acquire blocks until a token is available, per §4.7's refill/sleep
// algorithm. The token count never exceeds capacity and is
// monotone-non-negative after Acquire returns.
func (b *TokenBucket) Acquire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalAcquires++

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed >= time.Second {
		refill := math.Floor(elapsed.Seconds()) * b.capacity
		b.tokens = math.Min(b.capacity, b.tokens+refill)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return
	}

	wait := time.Second - now.Sub(b.lastRefill)
	if wait > 0 {
		b.mu.Unlock()
		b.sleepFn(wait)
		b.mu.Lock()
	}
	b.tokens = b.capacity
	b.lastRefill = time.Now()
	b.tokens--
}

// TotalAcquires returns the number of completed Acquire calls, used to
// compute requests_per_second.
func (b *TokenBucket) TotalAcquires() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalAcquires
}
