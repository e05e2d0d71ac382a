// Package ratelimit implements fixed-window request counters keyed by an
// identifier such as a normalized email address.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// DefaultRetryAfterSeconds is reported when a denied identifier has no
// window to compute a retry time from.
const DefaultRetryAfterSeconds = 60

// Limiter is a fixed-window rate limiter.
//
// Check never fails: when the backing store is unavailable implementations
// allow the request and log.
type Limiter interface {
	// Check records a request for identifier and reports whether it is
	// allowed. Denied requests do not increment the counter.
	Check(ctx context.Context, identifier string) bool
	// Remaining returns how many requests identifier may still make in the
	// current window.
	Remaining(ctx context.Context, identifier string) int
	// ResetTime returns when the current window of identifier ends.
	ResetTime(ctx context.Context, identifier string) (time.Time, bool)
	// Reset clears all state for identifier.
	Reset(ctx context.Context, identifier string)
	// Limit returns the configured maximum requests per window.
	Limit() int
}

// RetryAfterSeconds returns the whole seconds until identifier's window
// resets, or DefaultRetryAfterSeconds if no window exists.
func RetryAfterSeconds(ctx context.Context, l Limiter, identifier string, now time.Time) int {
	resetAt, ok := l.ResetTime(ctx, identifier)
	if !ok {
		return DefaultRetryAfterSeconds
	}
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Status is the window state of an identifier, as reported in
// X-RateLimit-* response headers. ResetAt is zero when no window exists.
type Status struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// StatusOf reads the current window state of identifier from l.
func StatusOf(ctx context.Context, l Limiter, identifier string) Status {
	st := Status{
		Limit:     l.Limit(),
		Remaining: l.Remaining(ctx, identifier),
	}
	if resetAt, ok := l.ResetTime(ctx, identifier); ok {
		st.ResetAt = resetAt
	}
	return st
}
