package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimit throttles clients by IP over a fixed one-minute window. A zero
// or negative limit disables the check; Redis errors let the request through
// so a cache outage never blocks planning.
func RateLimit(rdb *redis.Client, perMinute int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if perMinute <= 0 {
			return c.Next()
		}

		ctx := context.Background()
		now := time.Now()
		window := now.Unix() / 60

		key := fmt.Sprintf("rl:ip:%s:minute:%d", c.IP(), window)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}

		// Two minutes covers the window plus clock skew
		rdb.Expire(ctx, key, 2*time.Minute)

		windowEnd := time.Unix((window+1)*60, 0)

		if count > int64(perMinute) {
			retryAfter := int64(time.Until(windowEnd).Seconds()) + 1

			c.Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			return c.Status(429).JSON(fiber.Map{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests, slow down",
				"limit":       perMinute,
				"used":        count,
				"retry_after": retryAfter,
				"reset_at":    windowEnd.Format(time.RFC3339),
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(perMinute)-count, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))

		return c.Next()
	}
}

// getCurrentCount gets the current count from Redis
func getCurrentCount(ctx context.Context, rdb *redis.Client, key string) int64 {
	val, err := rdb.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return val
}

// ResetRateLimit clears the current window for one client (admin function)
func ResetRateLimit(rdb *redis.Client, ip string) error {
	ctx := context.Background()
	window := time.Now().Unix() / 60

	key := fmt.Sprintf("rl:ip:%s:minute:%d", ip, window)
	return rdb.Del(ctx, key).Err()
}

// GetRateLimitStatus reports the current window usage for one client
func GetRateLimitStatus(rdb *redis.Client, ip string, perMinute int) map[string]interface{} {
	ctx := context.Background()
	window := time.Now().Unix() / 60

	key := fmt.Sprintf("rl:ip:%s:minute:%d", ip, window)
	count := getCurrentCount(ctx, rdb, key)

	return map[string]interface{}{
		"limit":     perMinute,
		"used":      count,
		"remaining": maxInt64(0, int64(perMinute)-count),
		"resets_at": time.Unix((window+1)*60, 0).Format(time.RFC3339),
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
