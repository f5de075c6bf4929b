// Package ratelimit provides token-bucket throttling for outbound API calls.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fd1az/arbguard/internal/apperror"
)

// Limiter wraps rate.Limiter.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond with the given burst.
func New(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available. A deadline that would expire before
// the token frees up is reported as RATE_LIMIT_EXCEEDED.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}
	return nil
}

// Allow reports whether an event may happen now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Keyed holds one limiter per key, created on first use with shared settings.
// API quotas that apply per chain use the chain id as key.
type Keyed[K comparable] struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[K]*Limiter
}

// NewKeyed creates a Keyed limiter set.
func NewKeyed[K comparable](requestsPerSecond float64, burst int) *Keyed[K] {
	return &Keyed[K]{rps: requestsPerSecond, burst: burst, limiters: make(map[K]*Limiter)}
}

// For returns the limiter for key.
func (k *Keyed[K]) For(key K) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = New(k.rps, k.burst)
		k.limiters[key] = l
	}
	return l
}

// Wait blocks on the limiter for key.
func (k *Keyed[K]) Wait(ctx context.Context, key K) error {
	return k.For(key).Wait(ctx)
}
