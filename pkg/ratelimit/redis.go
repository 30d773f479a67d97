package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/1qh/nexvex/pkg/observability"
)

// fixedWindowScript increments the counter and starts the window on first
// use. It returns {count, pttl}.
const fixedWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// RedisLimiter is a fixed window limiter shared by every instance using the
// same Redis
type RedisLimiter struct {
	client   redis.UniversalClient
	script   *redis.Script
	prefix   string
	failOpen bool
	logger   *observability.Logger
}

// RedisOption configures a RedisLimiter
type RedisOption func(*RedisLimiter)

// WithPrefix sets the Redis key prefix
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisLimiter) {
		r.prefix = prefix
	}
}

// WithFailOpen controls whether Redis errors allow the operation
func WithFailOpen(failOpen bool) RedisOption {
	return func(r *RedisLimiter) {
		r.failOpen = failOpen
	}
}

// WithLogger sets the logger used for Redis errors
func WithLogger(logger *observability.Logger) RedisOption {
	return func(r *RedisLimiter) {
		r.logger = logger
	}
}

// NewRedisLimiter creates a Redis-backed limiter. By default it fails open.
func NewRedisLimiter(client redis.UniversalClient, opts ...RedisOption) *RedisLimiter {
	r := &RedisLimiter{
		client:   client,
		script:   redis.NewScript(fixedWindowScript),
		prefix:   "nexvex:ratelimit",
		failOpen: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow increments key's counter atomically inside Redis
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	now := time.Now()

	res, err := r.script.Run(ctx, r.client, []string{redisKey}, limit.Window.Milliseconds()).Result()
	if err == nil {
		var count, ttl int64
		count, ttl, err = parseScriptResult(res)
		if err == nil {
			return r.result(now, limit, count, ttl), nil
		}
	}

	if r.failOpen {
		r.log(ctx).WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing operation")
		return &Result{Allowed: true, Limit: limit.Max, Remaining: limit.Max}, nil
	}
	return nil, fmt.Errorf("redis error: %w", err)
}

// Reset clears a key's counter
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, fmt.Sprintf("%s:%s", r.prefix, key)).Err()
}

func (r *RedisLimiter) result(now time.Time, limit Limit, count, ttlMillis int64) *Result {
	ttl := time.Duration(ttlMillis) * time.Millisecond
	res := &Result{
		Allowed:   count <= int64(limit.Max),
		Limit:     limit.Max,
		Remaining: limit.Max - int(count),
		ResetAt:   now.Add(ttl),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

func (r *RedisLimiter) log(ctx context.Context) *observability.Logger {
	if r.logger != nil {
		return r.logger
	}
	return observability.FromContext(ctx)
}

func parseScriptResult(res interface{}) (int64, int64, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected script result %v", res)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected count %v", values[0])
	}
	ttl, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected ttl %v", values[1])
	}
	return count, ttl, nil
}
