// Package ratelimit provides the shared token-bucket admission control for
// all outbound research API calls. One Limiter instance is owned by the
// process composition root and injected into the gateway.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket: capacity tokens maximum, refilled continuously
// at refillPerSec. Acquire suspends the calling goroutine until a token is
// available; it never fails except on context cancellation.
type Limiter struct {
	bucket   *rate.Limiter
	capacity int
}

// New creates a Limiter with the given capacity and refill rate.
// Non-positive arguments fall back to a 1-token, 1/sec bucket.
func New(capacity int, refillPerSec float64) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = 1
	}
	return &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(refillPerSec), capacity),
		capacity: capacity,
	}
}

// Acquire blocks until one token is available, then consumes it. The wait
// is cooperative: it parks the goroutine on a timer and does not busy-wait
// or hold any lock while sleeping.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Tokens reports the number of tokens currently available. The value is
// advisory; it can change before the caller acts on it.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}

// Capacity returns the maximum number of tokens the bucket holds.
func (l *Limiter) Capacity() int {
	return l.capacity
}
