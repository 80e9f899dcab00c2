package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/storefront/backend/auth-service/internal/tokens"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID  = "user_id"
	ContextRole    = "role"
	ContextTokenID = "token_id"
)

// AccessVerifier is the minimal interface the middleware depends on
type AccessVerifier interface {
	Verify(raw string, kind tokens.Kind) (*tokens.Verified, error)
}

// AuthMiddleware returns a Gin middleware that verifies Bearer access tokens.
// Verification failures are answered here and never reach the handler.
func AuthMiddleware(ver AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		v, err := ver.Verify(token, tokens.Access)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextUserID, v.UserID)
		c.Set(ContextRole, v.Role)
		c.Set(ContextTokenID, v.ID)
		c.Next()
	}
}

// RequireRole lets the request through only when AuthMiddleware stored one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
