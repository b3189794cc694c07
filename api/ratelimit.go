package api

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per user. Idle buckets are dropped
// lazily once limiterIdleTTL has passed since their last use.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

// NewRateLimiter allows perMinute requests per user per minute with a burst
// of the same size. A non-positive value disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		interval: time.Minute / time.Duration(perMinute),
		now:      time.Now,
		limiters: make(map[string]*userLimiter),
	}
}

func (rl *RateLimiter) Allow(userID string) bool {
	now := rl.now()
	rl.mu.Lock()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[userID] = ul
	}
	ul.lastAccess = now
	rl.sweep(now)
	rl.mu.Unlock()
	return ul.limiter.AllowN(now, 1)
}

// Len reports the number of tracked users.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < limiterIdleTTL {
		return
	}
	rl.lastSweep = now
	for id, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > limiterIdleTTL {
			delete(rl.limiters, id)
		}
	}
}

func (rl *RateLimiter) retryAfter() string {
	secs := int((rl.interval + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
