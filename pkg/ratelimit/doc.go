// Package ratelimit throttles write operations with fixed window counters.
//
// Counters are keyed by caller and endpoint:
//
//	key := ratelimit.Key(userID, "tasks", "create") // "u1:tasks.create"
//	if err := ratelimit.Enforce(ctx, limiter, key, ratelimit.Limit{Max: 10, Window: time.Minute}); err != nil {
//		return err // RATE_LIMITED with RetryAfter, Limit and Remaining
//	}
//
// Two implementations are provided. MemoryLimiter keeps counters in process
// under a mutex. RedisLimiter runs an INCR plus PEXPIRE Lua script so that
// concurrent instances share one counter; when Redis is unreachable it
// allows the operation and logs the failure unless configured to fail closed.
package ratelimit
