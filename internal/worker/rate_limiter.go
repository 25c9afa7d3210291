package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanRateLimiter provides atomic per-owner scan rate limiting using a
// Redis Lua script. Prevents race conditions that occur with
// GET → check → INCR patterns when multiple workers share one Redis.
type ScanRateLimiter struct {
	redis     *redis.Client
	perMinute int

	// Pre-compiled Lua script for atomicity
	limitScript *redis.Script
}

// DefaultScanRatePerMinute caps how many extraction batches an owner can
// trigger per minute when no explicit limit is configured.
const DefaultScanRatePerMinute = 30

// Lua script for atomic rate limit check. Checks the limit BEFORE
// incrementing so a denied request never consumes quota.
const scanLimitLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}  -- denied
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}  -- allowed
`

// NewScanRateLimiter creates a rate limiter with a pre-compiled Lua script.
// perMinute <= 0 falls back to DefaultScanRatePerMinute.
func NewScanRateLimiter(redisClient *redis.Client, perMinute int) *ScanRateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultScanRatePerMinute
	}
	return &ScanRateLimiter{
		redis:       redisClient,
		perMinute:   perMinute,
		limitScript: redis.NewScript(scanLimitLuaScript),
	}
}

// NewScanRateLimiterFromAddr creates a rate limiter by connecting to Redis.
func NewScanRateLimiterFromAddr(addr, password string, db, perMinute int) (*ScanRateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[ScanRateLimiter] Connected to Redis at %s", addr)

	return NewScanRateLimiter(client, perMinute), nil
}

// CheckAndIncrement atomically checks and increments the owner's scan counter
// for the current minute bucket. A nil limiter allows everything, so callers
// can run without Redis in single-instance deployments.
func (r *ScanRateLimiter) CheckAndIncrement(ctx context.Context, ownerID string, count int) (allowed bool, waitTime time.Duration, err error) {
	if r == nil || r.redis == nil {
		return true, 0, nil
	}

	now := time.Now()
	key := fmt.Sprintf("scanlimit:%s:min:%d", ownerID, now.Unix()/60)

	result, err := r.limitScript.Run(ctx, r.redis,
		[]string{key},
		count,
		r.perMinute,
		120, // 2 minute TTL so the bucket outlives its window
	).Slice()

	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowedInt := result[0].(int64)
	if allowedInt == 0 {
		return false, time.Duration(60-now.Second()) * time.Second, nil
	}

	return true, 0, nil
}

// GetCurrentUsage returns current minute-bucket usage for an owner.
func (r *ScanRateLimiter) GetCurrentUsage(ctx context.Context, ownerID string) (map[string]int64, error) {
	if r == nil || r.redis == nil {
		return map[string]int64{"minute_current": 0, "minute_limit": int64(DefaultScanRatePerMinute)}, nil
	}

	now := time.Now()
	key := fmt.Sprintf("scanlimit:%s:min:%d", ownerID, now.Unix()/60)

	current, err := r.redis.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	return map[string]int64{
		"minute_current": current,
		"minute_limit":   int64(r.perMinute),
	}, nil
}

// Close closes the Redis connection.
func (r *ScanRateLimiter) Close() error {
	if r == nil || r.redis == nil {
		return nil
	}
	return r.redis.Close()
}
