package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/larp/internal/apperror"
)

// RateLimit limits requests per client IP to maxRequests per fixed window.
// Counters live in Redis so every server instance shares them. When Redis
// is unreachable requests are let through and a warning is logged.
func RateLimit(rdb *redis.Client, prefix string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKey(prefix, c.RealIP(), window, time.Now())

			count, err := incrWindow(c.Request().Context(), rdb, key, window)
			if err != nil {
				slog.Warn("rate limiter unavailable", slog.Any("error", err))
				return next(c)
			}

			remaining := max(maxRequests-int(count), 0)
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if int(count) > maxRequests {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				return apperror.NewTooManyRequests("Rate limit exceeded. Please try again later.")
			}
			return next(c)
		}
	}
}

func rateLimitKey(prefix, ip string, window time.Duration, now time.Time) string {
	bucket := now.UnixNano() / int64(window)
	return fmt.Sprintf("%s:ratelimit:%s:%d", prefix, ip, bucket)
}

func incrWindow(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, error) {
	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
