package collector

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitState tracks the server-communicated rate budget for one
// credential set. Concurrent pipeline runs sharing credentials share one
// instance so they cooperatively respect a single combined budget. All
// fields advance monotonically in time under the mutex.
type RateLimitState struct {
	mu        sync.Mutex
	pacer     *rate.Limiter
	remaining float64 // -1 until the server has told us
	resetAt   time.Time
	lastWait  time.Duration
	retries   int
	now       func() time.Time
}

// RateLimitSnapshot is a point-in-time copy of the state.
type RateLimitSnapshot struct {
	Remaining float64
	ResetAt   time.Time
	Retries   int
}

// NewRateLimitState creates a state enforcing the given minimum delay
// between requests. A non-positive interval defaults to 2s, which keeps a
// single unauthenticated client under Reddit's public API limits.
func NewRateLimitState(minInterval time.Duration) *RateLimitState {
	if minInterval <= 0 {
		minInterval = 2 * time.Second
	}
	return &RateLimitState{
		pacer:     rate.NewLimiter(rate.Every(minInterval), 1),
		remaining: -1,
		now:       time.Now,
	}
}

// Wait blocks until the next request is allowed: first until any
// server-communicated reset passes when the budget is exhausted, then for
// the minimum inter-request delay. Returns ctx.Err() on cancellation.
func (s *RateLimitState) Wait(ctx context.Context) error {
	s.mu.Lock()
	var hold time.Duration
	if s.remaining == 0 {
		if d := s.resetAt.Sub(s.now()); d > 0 {
			hold = d
		}
	}
	s.mu.Unlock()

	if hold > 0 {
		timer := time.NewTimer(hold)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return s.pacer.Wait(ctx)
}

// Observe updates the state from response headers. Reddit reports the
// remaining budget in X-Ratelimit-Remaining and seconds-until-reset in
// X-Ratelimit-Reset; a Retry-After header zeroes the budget until then.
func (s *RateLimitState) Observe(h http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := h.Get("X-Ratelimit-Remaining"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.remaining = f
		}
	}
	if v := h.Get("X-Ratelimit-Reset"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			s.resetAt = s.now().Add(time.Duration(secs) * time.Second)
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			until := s.now().Add(time.Duration(secs) * time.Second)
			if until.After(s.resetAt) {
				s.resetAt = until
			}
			s.remaining = 0
		}
	}
}

// RecordRetry notes one backoff retry and returns the total count.
func (s *RateLimitState) RecordRetry(wait time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	s.lastWait = wait
	return s.retries
}

// Snapshot returns a copy of the current state.
func (s *RateLimitState) Snapshot() RateLimitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RateLimitSnapshot{Remaining: s.remaining, ResetAt: s.resetAt, Retries: s.retries}
}
