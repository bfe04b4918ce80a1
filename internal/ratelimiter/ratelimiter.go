package ratelimiter

import (
	"math"
	"sync"
	"time"
)

// ClientLimiter provides per-client request rate limiting using a sliding
// window over request timestamps.
//
// Each client (keyed by IP) owns an ordered slice of admission timestamps.
// On every Admit call the window is evicted, checked, and appended as a
// single critical section under one mutex, so concurrent connections from
// the same client observe a consistent window.
//
// The sliding window algorithm works as follows:
//  1. Timestamps older than now - window are evicted.
//  2. If the remaining window already holds `limit` entries, the request is
//     rejected with the time until the oldest entry leaves the window.
//  3. Otherwise the request is admitted and `now` is appended.
//
// Equality at the boundary rejects: the limit is the maximum number of
// admitted requests inside any trailing window.
//
// Thread safety:
// All methods are safe for concurrent use.
type ClientLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the client must wait before the oldest
	// window entry expires. Zero when Allowed is true.
	RetryAfter time.Duration

	// Remaining is the number of additional requests the client may make
	// within the current window, after this one. -1 when Allowed is false.
	Remaining int
}

// NewClientLimiter creates a sliding-window limiter admitting at most
// `limit` requests per client within any trailing `window`.
//
// A limit of 0 disables limiting: every Admit call is allowed and no
// window state is kept.
func NewClientLimiter(limit int, window time.Duration) *ClientLimiter {
	return &ClientLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
	}
}

// Enabled reports whether the limiter enforces a limit.
func (l *ClientLimiter) Enabled() bool {
	return l.limit > 0
}

// Limit returns the configured per-window request limit.
func (l *ClientLimiter) Limit() int {
	return l.limit
}

// Window returns the configured window duration.
func (l *ClientLimiter) Window() time.Duration {
	return l.window
}

// Admit checks whether a request from clientIP at time `now` is allowed.
//
// Eviction, check, and append happen atomically under the limiter mutex.
// The caller supplies `now` so admission is deterministic under test.
func (l *ClientLimiter) Admit(clientIP string, now time.Time) Decision {
	if l.limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	timestamps := l.clients[clientIP]

	// Evict entries that fell out of the trailing window. Timestamps are
	// appended in order, so the live suffix starts at the first entry
	// after the cutoff.
	start := 0
	for start < len(timestamps) && !timestamps[start].After(cutoff) {
		start++
	}
	timestamps = timestamps[start:]

	if len(timestamps) >= l.limit {
		oldest := timestamps[0]
		retry := l.window - now.Sub(oldest)
		if retry < 0 {
			retry = 0
		}
		l.clients[clientIP] = timestamps
		return Decision{Allowed: false, RetryAfter: retry, Remaining: -1}
	}

	timestamps = append(timestamps, now)
	l.clients[clientIP] = timestamps

	return Decision{Allowed: true, Remaining: l.limit - len(timestamps)}
}

// RetryAfterSeconds converts a retry duration to the integer value surfaced
// in a Retry-After header: whole seconds, rounded up, never below 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
