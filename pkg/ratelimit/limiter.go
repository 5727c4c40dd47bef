// Package ratelimit keeps one token bucket per key on top of
// golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Keyed hands out a token bucket per key (client IP, symbol). Buckets idle
// for longer than the idle TTL are dropped on the next sweep.
type Keyed struct {
	mu      sync.Mutex
	m       map[string]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	swept   time.Time
}

// NewKeyed allows rps events per second per key with the given burst.
func NewKeyed(rps float64, burst int, idleTTL time.Duration) *Keyed {
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		m:       make(map[string]*entry),
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
	}
}

// NewInterval allows one event per interval per key.
func NewInterval(every time.Duration, idleTTL time.Duration) *Keyed {
	return &Keyed{
		m:       make(map[string]*entry),
		limit:   rate.Every(every),
		burst:   1,
		idleTTL: idleTTL,
	}
}

// Allow consumes one token for key at the wall-clock time.
func (k *Keyed) Allow(key string) bool {
	return k.AllowAt(key, time.Now())
}

// AllowAt consumes one token for key at t. Passing an explicit time lets
// callers with a simulated clock stay deterministic.
func (k *Keyed) AllowAt(key string, t time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.sweep(t)
	e, ok := k.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(k.limit, k.burst)}
		k.m[key] = e
	}
	e.seen = t
	return e.lim.AllowN(t, 1)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}

func (k *Keyed) sweep(now time.Time) {
	if k.idleTTL <= 0 || now.Sub(k.swept) < k.idleTTL {
		return
	}
	k.swept = now
	for key, e := range k.m {
		if now.Sub(e.seen) > k.idleTTL {
			delete(k.m, key)
		}
	}
}
