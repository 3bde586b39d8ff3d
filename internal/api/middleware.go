package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLoggingMiddleware logs every request with timing and status,
// grounded on the teacher's internal/infrastructure/api/rest
// loggingMiddleware, adapted from net/http middleware chaining to a gin
// handler func.
func requestLoggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.Request.RemoteAddr,
		)
	}
}
