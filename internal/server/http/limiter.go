package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter throttles login attempts per username with a token bucket.
type loginLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// newLoginLimiter allows perMinute attempts per username with the given
// burst. perMinute <= 0 disables throttling.
func newLoginLimiter(perMinute, burst int) *loginLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &loginLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether another attempt for username may proceed now.
func (l *loginLimiter) Allow(username string) bool {
	now := l.now()
	return l.get(username, now).AllowN(now, 1)
}

func (l *loginLimiter) get(username string, now time.Time) *rate.Limiter {
	l.mu.RLock()
	e, ok := l.limiters[username]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		e.lastSeen = now
		l.mu.Unlock()
		return e.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok = l.limiters[username]; ok {
		e.lastSeen = now
		return e.limiter
	}
	e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.limiters[username] = e
	return e.limiter
}

// Sweep forgets usernames idle for longer than idle.
func (l *loginLimiter) Sweep(idle time.Duration) {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for name, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, name)
		}
	}
}

func (l *loginLimiter) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}
