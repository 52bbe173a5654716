package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Keyed holds one token bucket per key, created on first use.
type Keyed struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// New allows burst events at once and refills at perSecond.
func New(perSecond float64, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	return &Keyed{m: make(map[string]*rate.Limiter), limit: rate.Limit(perSecond), burst: burst}
}

// Every allows one event per interval for each key. Alert cooldowns use it.
func Every(interval time.Duration) *Keyed {
	k := New(0, 1)
	k.limit = rate.Every(interval)
	return k
}

// Allow consumes one token for key if available.
func (k *Keyed) Allow(key string) bool { return k.AllowAt(key, time.Now()) }

func (k *Keyed) AllowAt(key string, now time.Time) bool {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.m[key] = l
	}
	k.mu.Unlock()
	return l.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
