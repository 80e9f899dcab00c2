package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/storefront/backend/auth-service/internal/config"
)

// SessionCookies carries the refresh token. It is the only channel the refresh
// token ever travels on; response bodies never include it.
type SessionCookies struct {
	cfg config.CookieConfig
}

func NewSessionCookies(cfg config.CookieConfig) SessionCookies {
	if cfg.Name == "" {
		cfg.Name = "refresh_token"
	}
	if cfg.Path == "" {
		cfg.Path = "/auth"
	}
	return SessionCookies{cfg: cfg}
}

func (s SessionCookies) Set(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	c.SetSameSite(s.cfg.SameSiteMode())
	c.SetCookie(s.cfg.Name, token, maxAge, s.cfg.Path, s.cfg.Domain, s.cfg.Secure, true)
}

func (s SessionCookies) Clear(c *gin.Context) {
	c.SetSameSite(s.cfg.SameSiteMode())
	c.SetCookie(s.cfg.Name, "", -1, s.cfg.Path, s.cfg.Domain, s.cfg.Secure, true)
}

// Read returns the refresh token, or "" when the cookie is absent.
func (s SessionCookies) Read(c *gin.Context) string {
	v, err := c.Cookie(s.cfg.Name)
	if err != nil {
		return ""
	}
	return v
}

const stateCookie = "oauth_state"

func setStateCookie(c *gin.Context, cfg config.CookieConfig, state string) {
	// Lax so the cookie survives the top-level redirect back from the provider.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 600, "/auth/google", cfg.Domain, cfg.Secure, true)
}

func clearStateCookie(c *gin.Context, cfg config.CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, "", -1, "/auth/google", cfg.Domain, cfg.Secure, true)
}
