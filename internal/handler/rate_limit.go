package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// 超过这个时间没有访问的限流器会被清理
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter 按客户端 IP 限流，过期的条目在访问时顺带清理
type RateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	rate        rate.Limit
	burst       int
	now         func() time.Time
	lastCleanup time.Time
}

// NewLoginRateLimiter 创建每个 IP 每分钟最多 perMinute 次、允许突发 burst 次的限流器
func NewLoginRateLimiter(perMinute, burst int) *RateLimiter {
	return newRateLimiter(float64(perMinute)/60, burst, time.Now)
}

func newRateLimiter(perSecond float64, burst int, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		limiters:    make(map[string]*limiterEntry),
		rate:        rate.Limit(perSecond),
		burst:       burst,
		now:         now,
		lastCleanup: now(),
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > cleanupInterval {
		for k, e := range rl.limiters {
			if now.Sub(e.lastAccess) > limiterTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastCleanup = now
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = now

	return entry.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
