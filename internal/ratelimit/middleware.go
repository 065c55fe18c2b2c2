package ratelimit

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/scorewise/scorewise/internal/errors"
)

// Middleware enforces the per-IP budget. A limiter failure never blocks the
// request; only an explicit rejection does.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rl.AllowIP(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.Error("rate limit check failed", "ip", c.ClientIP(), "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.RateLimitRejections.Inc()
			}
			retryAfter := strconv.Itoa(int(result.RetryAfter.Seconds()))
			c.Header("Retry-After", retryAfter)

			appErr := apperrors.NewRateLimitError(retryAfter)
			appErr.RequestID = c.GetString("request_id")
			apperrors.LogError(c, appErr)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		c.Next()
	}
}
