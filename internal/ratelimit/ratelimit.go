// Package ratelimit provides token-bucket limiters for outbound metadata requests
// and inbound API calls. KeyedRateLimiter throttles per key; Governor paces
// batches of concurrent calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket pairs a limiter with the last time its key was seen.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter keeps one token bucket per key. Keys are source names for
// outbound clients and client addresses for the API, so idle buckets can be
// evicted with StartEviction.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed limiter allowing rps requests per second per key with
// the given burst.
func New(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Allow reports whether a request for key may proceed now, without blocking.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.take(key).Allow()
}

// Wait blocks until a request for key is allowed or ctx is canceled.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.take(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.buckets)
}

// Evict drops buckets not seen for idle and returns how many were removed.
// A dropped key starts over with a full bucket.
func (krl *KeyedRateLimiter) Evict(idle time.Duration) int {
	cutoff := krl.now().Add(-idle)

	krl.mu.Lock()
	defer krl.mu.Unlock()

	removed := 0
	for key, b := range krl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(krl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartEviction runs Evict every interval until Stop is called.
func (krl *KeyedRateLimiter) StartEviction(interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				krl.Evict(idle)
			case <-krl.done:
				return
			}
		}
	}()
}

// Stop ends background eviction. Safe to call more than once.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) take(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	b, ok := krl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.buckets[key] = b
	}
	b.lastSeen = krl.now()
	return b.limiter
}
