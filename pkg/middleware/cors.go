package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS allows credentialed requests from the listed origins only. The refresh
// cookie never crosses origins otherwise, so a wildcard is not supported.
func CORS(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := origins[strings.ToLower(origin)]; ok && origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
