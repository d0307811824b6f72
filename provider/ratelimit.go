// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultLimiterIdleTTL is how long an origin's bucket is kept after
	// its last request.
	defaultLimiterIdleTTL = 10 * time.Minute

	// evictInterval is the number of requests between two sweeps of idle
	// buckets.
	evictInterval = 512
)

// originLimiter applies a token bucket per origin and periodically drops the
// buckets of origins that went idle. A nil limiter allows everything.
type originLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	byOrigin map[string]*limiterEntry
	hits     uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newOriginLimiter returns a limiter allowing limit requests per second with
// the given burst per origin. It returns nil if limit or burst is not
// positive, which disables rate limiting.
func newOriginLimiter(limit rate.Limit, burst int,
	idleTTL time.Duration) *originLimiter {

	if limit <= 0 || burst <= 0 {
		return nil
	}

	if idleTTL <= 0 {
		idleTTL = defaultLimiterIdleTTL
	}

	return &originLimiter{
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL,
		byOrigin: make(map[string]*limiterEntry),
	}
}

// allow reports whether origin may make one more request at now.
func (l *originLimiter) allow(origin string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byOrigin[origin]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byOrigin[origin] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%evictInterval == 0 {
		l.evictIdle(now)
	}

	return allowed
}

// evictIdle drops every bucket not used since idleTTL before now. The caller
// must hold the mutex.
func (l *originLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for origin, e := range l.byOrigin {
		if e.lastSeen.Before(cutoff) {
			delete(l.byOrigin, origin)
		}
	}
}
