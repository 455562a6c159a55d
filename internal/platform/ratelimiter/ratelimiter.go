// Package ratelimiter applies a token bucket per flow session so one
// misbehaving client cannot starve the endpoint while unrelated emergencies
// proceed.
package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerKey keeps one token bucket per string key and drops buckets that have
// been idle past the TTL during routine use, bounding memory without a
// dedicated sweeper.
type PerKey struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// New returns nil when the limits are not positive; a nil *PerKey allows
// everything, so callers can wire it unconditionally.
func New(rps float64, burst int, idleTTL time.Duration) *PerKey {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &PerKey{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether one token can be consumed for key at now.
func (l *PerKey) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if now.Sub(l.lastSweep) > l.idleTTL {
		l.sweepLocked(now)
		l.lastSweep = now
	}

	return b.limiter.AllowN(now, 1)
}

func (l *PerKey) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}
