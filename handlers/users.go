package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/storefront/storefront/backend/auth-service/pkg/middleware"
)

// RegisterAPI mounts the bearer-protected routes. authn must set the user id
// the way middleware.AuthMiddleware does.
func (h *AuthHandler) RegisterAPI(api *gin.RouterGroup, authn gin.HandlerFunc, extra ...gin.HandlerFunc) {
	protected := api.Group("/", append([]gin.HandlerFunc{authn}, extra...)...)
	protected.GET("/me", h.Me)

	admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.DELETE("/users/:id/sessions", h.RevokeSessions)
}

// Me returns the caller's user record.
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindTokenMissing, "authentication required"))
		return
	}
	u, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// RevokeSessions deletes every refresh token of the user in the path.
func (h *AuthHandler) RevokeSessions(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.New(apperr.KindInvalidInput, "invalid user id").With("field", "id"))
		return
	}
	n, err := h.auth.RevokeAll(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}
