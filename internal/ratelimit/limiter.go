// Package ratelimit implements a fixed-window request counter over a
// shared store, so every service instance sees the same windows.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/metrics"
)

// Store atomically increments the counter for key and returns the new
// count with the time left in the current window. The window's expiry is
// set by the first hit only.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// FailOpen is set when the store could not be consulted.
	FailOpen bool
}

// ResetAtEpochMs returns ResetAt as Unix milliseconds.
func (d Decision) ResetAtEpochMs() int64 {
	return d.ResetAt.UnixMilli()
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int((d.ResetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter applies fixed-window limits. A nil store or a failing store
// allows every request.
type Limiter struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// New creates a Limiter. store may be nil when no counter store is
// configured.
func New(store Store, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:   store,
		logger:  logger.Named("ratelimit"),
		timeout: 500 * time.Millisecond,
		now:     time.Now,
	}
}

// Allow counts one request for (scope, identity) and reports whether it
// fits within limit for the current window.
func (l *Limiter) Allow(ctx context.Context, scope, identity string, limit int, window time.Duration) Decision {
	now := l.now()
	if l.store == nil {
		metrics.RateLimitDecisions.WithLabelValues(metricScope(scope), "fail_open").Inc()
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window), FailOpen: true}
	}

	hitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, ttl, err := l.store.Hit(hitCtx, scope+":"+identity, window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			zap.Bool("degraded", true),
			zap.String("scope", scope),
			zap.Error(err))
		metrics.RateLimitDecisions.WithLabelValues(metricScope(scope), "fail_open").Inc()
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window), FailOpen: true}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
	}
	if d.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(metricScope(scope), "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(metricScope(scope), "denied").Inc()
	}
	return d
}

// metricScope drops the per-resource suffix so label cardinality stays
// bounded.
func metricScope(scope string) string {
	kind, _, _ := strings.Cut(scope, ":")
	return kind
}
