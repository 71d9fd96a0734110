package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/modelgen/pkg/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RateLimiter struct {
	redis  redis.UniversalClient
	logger zerolog.Logger
}

func NewRateLimiter(redisClient redis.UniversalClient, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Limit allows maxRequests per window for each caller. Authenticated
// callers are counted by user ID, anonymous ones by client IP.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}

		subject := GetUserID(c)
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)
		ctx := c.UserContext()

		var incr *redis.IntCmd
		_, err := rl.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			return nil
		})
		if err != nil {
			// Fail open when Redis is unavailable.
			rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
			return c.Next()
		}

		count := incr.Val()
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())))
			c.Set("X-RateLimit-Remaining", "0")
			return response.RateLimited(c)
		}
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(maxRequests)-count, 10))

		return c.Next()
	}
}

// ModelLimit limits model task creation per hour
func (rl *RateLimiter) ModelLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("model", maxPerHour, time.Hour)
}

// SessionLimit limits session starts per hour
func (rl *RateLimiter) SessionLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("session", maxPerHour, time.Hour)
}
