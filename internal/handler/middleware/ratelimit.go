package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/metrics"
	"github.com/andressep95/nfc-access-service/internal/response"
	"github.com/andressep95/nfc-access-service/pkg/ratelimit"
)

// RateLimit gates requests per client IP. Limiter errors let the request
// through.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}

		key := c.IP()
		res, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			metrics.RateLimitedTotal.Inc()
			logger.Warn("Rate limit exceeded", zap.String("ip", key), zap.Int("limit", res.Limit))
			if res.RetryAfter > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			return response.RateLimited(c, "too many requests")
		}

		return c.Next()
	}
}
