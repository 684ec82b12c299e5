package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// globalConnectionLimiter caps concurrent totem connections on this instance.
type globalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func newGlobalConnectionLimiter(max int64) *globalConnectionLimiter {
	return &globalConnectionLimiter{max: max}
}

func (l *globalConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalConnectionLimiter) Release() {
	l.current.Add(-1)
}

func (l *globalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// ipConnectionLimiter caps concurrent totem connections per client IP.
type ipConnectionLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func newIPConnectionLimiter(maxPer int) *ipConnectionLimiter {
	return &ipConnectionLimiter{ips: make(map[string]int), maxPer: maxPer}
}

func (l *ipConnectionLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipConnectionLimiter) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// connectionRateLimiter is a token bucket per IP for new totem connections, so a totem
// stuck in a reconnect loop cannot hammer the store with initial syncs.
type connectionRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	clock     clockwork.Clock
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	rateLimiterCleanupEvery = 5 * time.Minute
	rateLimiterIdleTTL      = 10 * time.Minute
)

func newConnectionRateLimiter(perSecond float64, burst int, clock clockwork.Clock) *connectionRateLimiter {
	return &connectionRateLimiter{
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		clock:     clock,
		cleanupAt: clock.Now().Add(rateLimiterCleanupEvery),
	}
}

func (l *connectionRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(rateLimiterCleanupEvery)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup must be called with mu held.
func (l *connectionRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rateLimiterIdleTTL)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func (l *connectionRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
