package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/auth"
	"github.com/storefront/storefront/backend/auth-service/internal/config"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/storefront/storefront/backend/auth-service/internal/users"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

// AuthService is the session lifecycle the handlers drive.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, raw string) (*auth.Session, error)
	Logout(ctx context.Context, raw string) error
	OAuthLogin(ctx context.Context, p models.ExternalProfile) (*auth.Session, error)
	RevokeAll(ctx context.Context, userID int64) (int64, error)
}

type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// OAuthProvider is satisfied by *oidc.Provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, state string) (models.ExternalProfile, error)
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string          `json:"username" binding:"required"`
	Email    string          `json:"email" binding:"required"`
	Password string          `json:"password" binding:"required"`
	Address  *models.Address `json:"address"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg      *config.Config
	auth     AuthService
	users    UserService
	provider OAuthProvider
	cookies  SessionCookies
}

func NewAuthHandler(cfg *config.Config, a AuthService, u UserService) *AuthHandler {
	return &AuthHandler{cfg: cfg, auth: a, users: u, cookies: NewSessionCookies(cfg.Cookie)}
}

// WithProvider enables the Google sign-in routes.
func (h *AuthHandler) WithProvider(p OAuthProvider) *AuthHandler {
	h.provider = p
	return h
}

// Register routes under /auth. limit, when given, guards the credential endpoints.
func (h *AuthHandler) Register(rg *gin.RouterGroup, limit ...gin.HandlerFunc) {
	a := rg.Group("/auth")
	guarded := a.Group("/", limit...)
	guarded.POST("/register", h.SignUp)
	guarded.POST("/login", h.Login)
	guarded.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	if h.provider != nil {
		guarded.GET("/google", h.GoogleStart)
		guarded.GET("/google/callback", h.GoogleCallback)
	}
}

type sessionResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresIn   int64        `json:"expiresIn"`
	User        *models.User `json:"user,omitempty"`
}

// deliver sets the refresh cookie and writes the access token.
func (h *AuthHandler) deliver(c *gin.Context, sess *auth.Session, withUser bool) {
	h.cookies.Set(c, sess.RefreshToken, sess.RefreshExpiresAt)
	resp := sessionResponse{
		AccessToken: sess.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(sess.AccessExpiresAt).Seconds()),
	}
	if withUser {
		resp.User = sess.User
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

func badBody(c *gin.Context) {
	respondError(c, apperr.New(apperr.KindInvalidInput, "malformed request body"))
}

// SignUp creates a password account.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	u, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// Login checks email and password and starts a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.deliver(c, sess, true)
}

// Refresh rotates the refresh cookie and returns a new access token. Any failure
// clears the cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	sess, err := h.auth.Refresh(c.Request.Context(), h.cookies.Read(c))
	if err != nil {
		if !apperr.Is(err, apperr.KindStorageUnavailable) {
			h.cookies.Clear(c)
		}
		respondError(c, err)
		return
	}
	h.deliver(c, sess, false)
}

// Logout ends every session of the cookie's owner.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.cookies.Clear(c)
	if err := h.auth.Logout(c.Request.Context(), h.cookies.Read(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GoogleStart redirects to the provider's consent page.
func (h *AuthHandler) GoogleStart(c *gin.Context) {
	state := uuid.NewString()
	setStateCookie(c, h.cfg.Cookie, state)
	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state))
}

// GoogleCallback finishes the code flow and starts a session.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	expected, _ := c.Cookie(stateCookie)
	clearStateCookie(c, h.cfg.Cookie)

	if e := c.Query("error"); e != "" {
		logger.InfoFields("oauth_denied", logger.Fields{"reason": e})
		respondError(c, apperr.New(apperr.KindOAuthRejected, "sign-in was cancelled"))
		return
	}
	state := c.Query("state")
	if expected == "" || state != expected {
		respondError(c, apperr.New(apperr.KindOAuthRejected, "sign-in state mismatch"))
		return
	}

	profile, err := h.provider.Exchange(c.Request.Context(), c.Query("code"), state)
	if err != nil {
		respondError(c, err)
		return
	}
	sess, err := h.auth.OAuthLogin(c.Request.Context(), profile)
	if err != nil {
		respondError(c, err)
		return
	}
	h.deliver(c, sess, true)
}
