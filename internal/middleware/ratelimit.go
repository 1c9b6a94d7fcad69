package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"feedhub/internal/models"
	"feedhub/internal/observability"
)

// AuthLimiter throttles the credential endpoints with a fixed-window
// counter per client IP. Signup and login are anonymous, so the IP is the
// only stable key.
type AuthLimiter struct {
	rdb     *redis.Client
	limit   int
	window  time.Duration
	enabled bool
}

// NewAuthLimiter returns a limiter allowing limit attempts per window. It is
// a pass-through when enabled is false, limit is not positive or rdb is nil.
func NewAuthLimiter(rdb *redis.Client, limit int, window time.Duration, enabled bool) *AuthLimiter {
	return &AuthLimiter{
		rdb:     rdb,
		limit:   limit,
		window:  window,
		enabled: enabled && rdb != nil && limit > 0 && window > 0,
	}
}

// Enabled reports whether requests are counted.
func (l *AuthLimiter) Enabled() bool {
	return l.enabled
}

// Allow counts one attempt against bucket/key. When the attempt is refused
// retryAfter is the time left in the window.
func (l *AuthLimiter) Allow(ctx context.Context, bucket, key string) (allowed bool, retryAfter time.Duration, err error) {
	if !l.enabled {
		return true, 0, nil
	}
	k := "rl:" + bucket + ":" + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("ratelimit_incr").Inc()
		return false, 0, err
	}

	left := ttl.Val()
	if left < 0 {
		// First hit in the window: the key has no expiry yet.
		if err := l.rdb.PExpire(ctx, k, l.window).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("ratelimit_expire").Inc()
		}
		left = l.window
	}
	if incr.Val() > int64(l.limit) {
		return false, left, nil
	}
	return true, 0, nil
}

// Handler enforces the limit for bucket. Redis failures let the request
// through.
func (l *AuthLimiter) Handler(bucket string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.enabled {
			return c.Next()
		}
		allowed, retryAfter, err := l.Allow(c.UserContext(), bucket, c.IP())
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit check failed",
				slog.String("bucket", bucket),
				slog.String("error", err.Error()),
			)
			return c.Next()
		}
		if !allowed {
			secs := int(retryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Message: "Too many attempts, please try again later.",
				Code:    "RATE_LIMITED",
				Status:  fiber.StatusTooManyRequests,
			})
		}
		return c.Next()
	}
}
