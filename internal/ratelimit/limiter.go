// Package ratelimit throttles requests with a fixed-window counter per key.
// Counters live behind CounterStore so a multi-instance deployment can share
// them through Redis instead of process memory.
package ratelimit

import (
	"context"
	"math"
	"time"

	dErrors "tripkey/pkg/domain-errors"
)

// CounterStore increments the counter for key inside the current window and
// reports the new count and when the window resets.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until the window resets; zero when allowed.
	RetryAfter int
}

// Limiter admits at most Max requests per key per Window.
type Limiter struct {
	store  CounterStore
	max    int
	window time.Duration
	now    func() time.Time
}

type LimiterOption func(*Limiter)

func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(store CounterStore, limit int, window time.Duration, opts ...LimiterOption) (*Limiter, error) {
	if limit <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate limit max must be positive")
	}
	if window < time.Second {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate limit window must be at least one second")
	}
	l := &Limiter{store: store, max: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Max() int              { return l.max }

func (l *Limiter) Check(ctx context.Context, key string) (*Result, error) {
	count, resetAt, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Allowed:   count <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-count, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = l.retryAfter(resetAt)
	}
	return res, nil
}

// retryAfter rounds up to whole seconds and stays within [1, window].
func (l *Limiter) retryAfter(resetAt time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(l.now()).Seconds()))
	limit := int(l.window / time.Second)
	return min(max(secs, 1), limit)
}
