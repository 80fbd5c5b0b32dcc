package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles outgoing requests
type Limiter interface {
	// Allow takes a token if one is available
	Allow() bool
	// Wait blocks until a token is available or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter
	Reset()
}

// TokenBucket implements a token bucket rate limiter. Tokens trickle back
// one every refillEvery up to capacity.
type TokenBucket struct {
	capacity    int
	tokens      int
	refillEvery time.Duration
	lastRefill  time.Time
	mu          sync.Mutex
}

// NewTokenBucket creates a token bucket holding capacity tokens, each
// replenished after refillEvery
func NewTokenBucket(capacity int, refillEvery time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:    capacity,
		tokens:      capacity,
		refillEvery: refillEvery,
		lastRefill:  time.Now(),
	}
}

// PerMinute returns a limiter allowing n requests per minute with a burst of
// n/10 (at least one), or Unlimited when n <= 0
func PerMinute(n int) Limiter {
	if n <= 0 {
		return Unlimited{}
	}
	burst := n / 10
	if burst < 1 {
		burst = 1
	}
	return NewTokenBucket(burst, time.Minute/time.Duration(n))
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		delay := tb.refillEvery - time.Since(tb.lastRefill)
		tb.mu.Unlock()
		if delay <= 0 {
			delay = time.Millisecond
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// Available returns the current number of tokens
func (tb *TokenBucket) Available() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	return tb.tokens
}

func (tb *TokenBucket) refill(now time.Time) {
	if tb.refillEvery <= 0 {
		tb.tokens = tb.capacity
		tb.lastRefill = now
		return
	}

	n := int(now.Sub(tb.lastRefill) / tb.refillEvery)
	if n <= 0 {
		return
	}
	tb.tokens += n
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(n) * tb.refillEvery)
}

// Unlimited never throttles
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

func (Unlimited) Reset() {}
