package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another request for key fits in the window
type Limiter interface {
	Allow(key string, limit int, window time.Duration) bool
}

// MemoryLimiter counts requests per key in fixed windows within one process.
// Expired windows are dropped at most once per sweep interval.
type MemoryLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*rateBucket
	sweepEvery time.Duration
	nextSweep  time.Time
}

type rateBucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*rateBucket), sweepEvery: time.Minute}
}

func (l *MemoryLimiter) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(l.sweepEvery)
	}
	b, ok := l.buckets[key]
	if !ok || now.After(b.windowEnd) {
		l.buckets[key] = &rateBucket{count: 1, windowEnd: now.Add(window)}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.After(b.windowEnd) {
			delete(l.buckets, key)
		}
	}
}

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter shares request counts between replicas. It fails open when
// Redis does not answer.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, script: redis.NewScript(rateLimitScript)}
}

func (l *RedisLimiter) Allow(key string, limit int, window time.Duration) bool {
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key}, ttl, limit).Int64()
	if err != nil {
		return true
	}
	return allowed == 1
}

// NewLimiter picks the Redis limiter when a client is available
func NewLimiter(client *redis.Client) Limiter {
	if client == nil {
		return NewMemoryLimiter()
	}
	return NewRedisLimiter(client)
}

// RateLimit rejects callers that exceed limit requests per window, keyed by client IP
func RateLimit(limiter Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		if !limiter.Allow(scope+":"+c.ClientIP(), limit, window) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, try again later"})
			return
		}
		c.Next()
	}
}
