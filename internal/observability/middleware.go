package observability

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

// RequestLogging logs one structured line per request.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logger.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}
		if fields["path"] == "" {
			fields["path"] = c.Request.URL.Path
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.ErrorFields("http_request", fields)
			return
		}
		logger.InfoFields("http_request", fields)
	}
}

// Recover turns a panic into a 500, reporting it to Sentry.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("panic", rec)
					scope.SetExtra("stack", string(debug.Stack()))
					sentry.CaptureMessage("panic in request")
				})

				logger.ErrorFields("panic_recovered", logger.Fields{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
					"panic":  rec,
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
