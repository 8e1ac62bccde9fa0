package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kexi/pypi-cache-proxy/internal/metrics"
)

// Metrics returns a middleware that collects Prometheus metrics.
// It records request count, duration, and response size.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordRequest(c.Request.Method, c.Request.URL.Path, status)
		metrics.RecordRequestDuration(c.Request.Method, c.Request.URL.Path, duration)

		if size := c.Writer.Size(); size > 0 {
			metrics.RecordResponseSize(c.Request.URL.Path, float64(size))
		}
	}
}
