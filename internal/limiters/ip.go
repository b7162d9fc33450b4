package limiters

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrIPRateLimited is the sentinel every per-address denial matches once an
// address is over its budget.
var ErrIPRateLimited = errors.New("ip rate limited")

// IPConfig sizes the per-address token bucket: Limit requests per Window,
// refilled continuously. Buckets unused for IdleTTL are evicted.
type IPConfig struct {
	Limit   int
	Window  time.Duration
	IdleTTL time.Duration
}

// IPThrottle keeps one in-process token bucket per source address.
type IPThrottle struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle creates a throttle for cfg. It returns nil when cfg allows
// nothing to be measured (non-positive limit or window).
func NewIPThrottle(cfg IPConfig) *IPThrottle {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 15 * time.Minute
	}
	return &IPThrottle{
		entries: make(map[string]*ipEntry),
		rps:     rate.Limit(float64(cfg.Limit) / cfg.Window.Seconds()),
		burst:   cfg.Limit,
		idleTTL: idle,
	}
}

// Allow consumes one token for ip at now. When the bucket is empty it
// returns false and the wait until the next token.
func (t *IPThrottle) Allow(ip string, now time.Time) (bool, time.Duration) {
	if t == nil || ip == "" {
		return true, 0
	}

	lim := t.limiter(ip, now)
	if lim.AllowN(now, 1) {
		return true, 0
	}

	deficit := 1 - lim.TokensAt(now)
	wait := time.Duration(math.Ceil(deficit / float64(t.rps) * float64(time.Second)))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// Len returns the number of tracked addresses.
func (t *IPThrottle) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Cleanup evicts buckets idle since before now-IdleTTL.
func (t *IPThrottle) Cleanup(now time.Time) int {
	if t == nil {
		return 0
	}
	cutoff := now.Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (t *IPThrottle) StartJanitor(ctx context.Context, every time.Duration, clock func() time.Time) {
	if t == nil || every <= 0 {
		return
	}
	if clock == nil {
		clock = time.Now
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Cleanup(clock())
			}
		}
	}()
}

func (t *IPThrottle) limiter(ip string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ent, ok := t.entries[ip]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(t.rps, t.burst)
	t.entries[ip] = &ipEntry{lim: lim, lastSeen: now}
	return lim
}
