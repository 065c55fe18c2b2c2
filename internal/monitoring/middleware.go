package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records request metrics and access logs for every route. Mounted
// first so it captures requests rejected further down the chain.
func Middleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()

		metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(path).Observe(duration.Seconds())
		logger.RequestLogger(c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.GetString("request_id"), status, duration)
	}
}
