// Package ratelimit provides a per-caller token bucket limiter.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter controls how frequently a caller may perform an action.
type Limiter interface {
	Allow(key string) bool
}

// KeyedLimiter keeps one token bucket per key. Idle keys expire after ttl.
type KeyedLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// New allows rps events per second per key with the given burst.
func New(rps float64, burst int, ttl time.Duration) *KeyedLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &KeyedLimiter{
		callers: make(map[string]*caller),
		limit:   rate.Limit(rps),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	c := l.getCallerLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (l *KeyedLimiter) getCallerLocked(key string, now time.Time) *caller {
	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c
	}

	c := &caller{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.callers[key] = c
	return c
}

func (l *KeyedLimiter) gcLocked(now time.Time) {
	for key, c := range l.callers {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.callers, key)
		}
	}
}

// Len reports how many keys are tracked.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// WithNowFunc allows tests to override the time source.
func (l *KeyedLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
