package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyedLimiters hands out one token bucket per key (IP or connection ID) and
// drops entries that have been idle long enough.
type keyedLimiters struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	r        rate.Limit
	burst    int
	maxIdle  time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiters(r float64, burst int, maxIdle time.Duration) *keyedLimiters {
	return &keyedLimiters{
		limiters: make(map[string]*limiterEntry),
		r:        rate.Limit(r),
		burst:    burst,
		maxIdle:  maxIdle,
	}
}

func (k *keyedLimiters) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.r, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Allow consumes one token for key.
func (k *keyedLimiters) Allow(key string) bool {
	return k.get(key).Allow()
}

// AllowN consumes n tokens for key.
func (k *keyedLimiters) AllowN(key string, n int) bool {
	return k.get(key).AllowN(time.Now(), n)
}

// Tokens reports the whole tokens currently available for key.
func (k *keyedLimiters) Tokens(key string) int {
	t := int(k.get(key).Tokens())
	if t < 0 {
		return 0
	}
	return t
}

// Remove drops the bucket for key.
func (k *keyedLimiters) Remove(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.limiters, key)
}

// cleanup drops buckets idle past maxIdle.
func (k *keyedLimiters) cleanup(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.limiters {
		if now.Sub(e.lastSeen) > k.maxIdle {
			delete(k.limiters, key)
		}
	}
}
