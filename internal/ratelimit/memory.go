package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// gcProbability is the chance that a Check call sweeps expired windows.
const gcProbability = 0.01

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. In a multi-process
// deployment each process enforces its own budget.
type MemoryLimiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	window      time.Duration
	maxRequests int
	now         func() time.Time
	sweep       func() bool
}

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// WithSweepDecider replaces the probabilistic sweep trigger.
func WithSweepDecider(sweep func() bool) Option {
	return func(l *MemoryLimiter) {
		l.sweep = sweep
	}
}

// NewMemoryLimiter creates a limiter allowing maxRequests per windowLen.
func NewMemoryLimiter(windowLen time.Duration, maxRequests int, opts ...Option) *MemoryLimiter {
	l := &MemoryLimiter{
		windows:     make(map[string]*window),
		window:      windowLen,
		maxRequests: maxRequests,
		now:         time.Now,
		sweep:       func() bool { return rand.Float64() < gcProbability },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check implements Limiter.
func (l *MemoryLimiter) Check(_ context.Context, identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.sweep() {
		l.cleanupLocked(now)
	}

	w, ok := l.windows[identifier]
	if !ok || now.After(w.resetAt) {
		l.windows[identifier] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count >= l.maxRequests {
		return false
	}
	w.count++
	return true
}

// Remaining implements Limiter.
func (l *MemoryLimiter) Remaining(_ context.Context, identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || l.now().After(w.resetAt) {
		return l.maxRequests
	}
	return max(0, l.maxRequests-w.count)
}

// ResetTime implements Limiter.
func (l *MemoryLimiter) ResetTime(_ context.Context, identifier string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || l.now().After(w.resetAt) {
		return time.Time{}, false
	}
	return w.resetAt, true
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context, identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, identifier)
}

// Limit implements Limiter.
func (l *MemoryLimiter) Limit() int {
	return l.maxRequests
}

// Len returns the number of tracked identifiers, including expired ones
// not yet swept.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *MemoryLimiter) cleanupLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
