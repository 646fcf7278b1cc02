package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// FixedWindowLimiter throttles callers with a per-key fixed window: the first
// request after a window expires resets the counter to 1 and opens a new
// window. Process-local and best effort; check-and-increment is atomic under
// one mutex so concurrent requests cannot lose updates.
type FixedWindowLimiter struct {
	max    int
	window time.Duration
	clock  func() time.Time

	mu       sync.Mutex
	counters map[string]windowCounter
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// NewFixedWindowLimiter constructs a limiter over the wall clock. A nil
// return (non-positive max or window) disables throttling.
func NewFixedWindowLimiter(max int, window time.Duration) *FixedWindowLimiter {
	return newFixedWindowLimiter(max, window, time.Now)
}

func newFixedWindowLimiter(max int, window time.Duration, clock func() time.Time) *FixedWindowLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &FixedWindowLimiter{
		max:      max,
		window:   window,
		clock:    clock,
		counters: make(map[string]windowCounter),
	}
}

// Allow records one request for key and reports whether it fits the current
// window. When rejected, the second return value is how long the caller
// should wait before retrying.
func (l *FixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.counters[key]
	if !ok || !now.Before(counter.resetAt) {
		l.counters[key] = windowCounter{count: 1, resetAt: now.Add(l.window)}
		l.dropExpiredLocked(now)
		return true, 0
	}
	if counter.count >= l.max {
		return false, counter.resetAt.Sub(now)
	}
	counter.count++
	l.counters[key] = counter
	return true, 0
}

// dropExpiredLocked opportunistically forgets keys whose window has passed so
// the map does not grow with one-off callers. Caller holds the mutex.
func (l *FixedWindowLimiter) dropExpiredLocked(now time.Time) {
	for key, counter := range l.counters {
		if !now.Before(counter.resetAt) {
			delete(l.counters, key)
		}
	}
}

// clientKey identifies the caller for throttling purposes. RealIP middleware
// has already folded proxy headers into RemoteAddr.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
