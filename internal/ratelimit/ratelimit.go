// Package ratelimit provides per-key request limiting for the REST endpoints
// and chat messages.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides whether a request from key should be allowed. When allowed
// is false, retryAfterSec may be set for the Retry-After response header
// (0 = omit).
type Limiter interface {
	Allow(key string) (allowed bool, retryAfterSec int)
}

// Noop allows every request.
type Noop struct{}

func (Noop) Allow(string) (bool, int) { return true, 0 }

// InMemory is a sliding-window limiter keyed by an arbitrary string, usually
// the client IP. State is process-local; multi-instance deployments need a
// shared backend instead.
type InMemory struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

// NewInMemory allows up to max requests per key per window.
func NewInMemory(max int, window time.Duration) *InMemory {
	return &InMemory{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow records one request for key and reports whether it fits the window.
func (l *InMemory) Allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now)
	if len(recent) >= l.max {
		return false, retryAfterSec(recent[0], l.window, now)
	}
	l.hits[key] = append(recent, now)
	return true, 0
}

// prune drops hits older than the window and returns what remains. Keys with
// no recent hits are removed from the map so idle clients do not accumulate.
func (l *InMemory) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = recent
	return recent
}

// retryAfterSec returns the whole seconds until the oldest hit leaves the
// window, at least 1.
func retryAfterSec(oldest time.Time, window time.Duration, now time.Time) int {
	wait := oldest.Add(window).Sub(now)
	if wait <= 0 {
		return 1
	}
	sec := int(wait.Seconds())
	if sec < 1 {
		sec = 1
	}
	return sec
}
