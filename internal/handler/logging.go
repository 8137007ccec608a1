package handler

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sensitiveParams are query parameters that must never reach the logs. The
// OAuth callback carries the authorization code and state token in the URL.
var sensitiveParams = map[string]bool{
	"code":          true,
	"state":         true,
	"code_verifier": true,
}

// LoggerMiddleware creates a structured logging middleware
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.Query())

		// Process request
		c.Next()

		logger.Info("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("user_id", c.GetString("user_id")),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("size", c.Writer.Size()),
		)
	}
}

func redactQuery(q url.Values) string {
	for param := range q {
		if sensitiveParams[param] {
			q.Set(param, "REDACTED")
		}
	}
	return q.Encode()
}
