// Package ratelimit provides fixed-window admission control backed by Redis.
// The window counters live in Redis so every service instance shares them;
// check-and-increment runs in a Lua script to avoid the GET/check/INCR race.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haltman-io/mailfwd/internal/pkg/logger"
)

// Atomically checks the window counter against the limit and increments only
// when the request is admitted. Sets the TTL when the key is created.
const windowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, newVal}
`

// Limiter is a shared fixed-window rate limiter. Admission control here is
// advisory — the confirmation core stays correct without it — so a Redis
// failure admits the request instead of taking the service down.
type Limiter struct {
	rdb    *redis.Client
	script *redis.Script
	prefix string
}

// New creates a Limiter using the given client and key prefix.
func New(rdb *redis.Client, prefix string) *Limiter {
	return &Limiter{
		rdb:    rdb,
		script: redis.NewScript(windowScript),
		prefix: prefix,
	}
}

// Allow reports whether one more request keyed by key fits inside the window.
// A limit <= 0 disables the window. Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || limit <= 0 {
		return true
	}

	ttl := int(window / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	res, err := l.script.Run(ctx, l.rdb, []string{l.prefix + key}, limit, ttl).Slice()
	if err != nil {
		logger.Warn("rate limit check failed, admitting", "key", l.prefix+key, "err", err.Error())
		return true
	}
	if len(res) < 1 {
		return true
	}
	allowed, ok := res[0].(int64)
	if !ok {
		return true
	}
	return allowed == 1
}

// Ping verifies the Redis connection at startup.
func (l *Limiter) Ping(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis ping: %w", err)
	}
	return nil
}
