package kit

import (
	"sync"
	"time"
)

// AttemptLimiter counts failures per key inside a sliding window. A limit of
// zero or less disables it.
type AttemptLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewAttemptLimiter(limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// WithClock replaces time.Now for the limiter.
func (l *AttemptLimiter) WithClock(now func() time.Time) *AttemptLimiter {
	l.now = now
	return l
}

// Allow reports whether key still has attempts left in the current window.
func (l *AttemptLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := prune(l.hits[key], l.now().Add(-l.window))
	if len(ts) == 0 {
		delete(l.hits, key)
		return true
	}
	l.hits[key] = ts
	return len(ts) < l.limit
}

func (l *AttemptLimiter) Fail(key string) {
	if l == nil || l.limit <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.hits[key] = append(prune(l.hits[key], now.Add(-l.window)), now)
}

func (l *AttemptLimiter) Reset(key string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			ts[n] = t
			n++
		}
	}
	return ts[:n]
}
