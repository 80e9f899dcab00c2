package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/storefront/storefront/backend/auth-service/internal/config"
)

// Kind distinguishes access from refresh tokens. It is signed into the "typ" claim
// and each kind has its own secret.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

var (
	ErrMalformed = errors.New("token malformed")
	ErrExpired   = errors.New("token expired")
	ErrInvalid   = errors.New("token invalid")
)

// Payload is what a token asserts about its holder.
type Payload struct {
	UserID int64
	Role   string
}

// Claims is the JWT body. Subject carries the decimal user id.
type Claims struct {
	Role string `json:"role"`
	Type Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Verified is the result of a successful Verify.
type Verified struct {
	Payload
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies HS256 access and refresh tokens.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewCodec(cfg config.JWTConfig) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("tokens: access and refresh secrets must differ")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("tokens: token lifetimes must be positive")
	}
	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and validating.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) IssueAccessToken(p Payload) (Issued, error) {
	return c.issue(p, Access, c.accessTTL, c.accessSecret)
}

func (c *Codec) IssueRefreshToken(p Payload) (Issued, error) {
	return c.issue(p, Refresh, c.refreshTTL, c.refreshSecret)
}

func (c *Codec) issue(p Payload, kind Kind, ttl time.Duration, secret []byte) (Issued, error) {
	now := c.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: p.Role,
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(p.UserID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return Issued{Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, expiry and kind of raw. The error is always one of
// ErrMalformed, ErrExpired or ErrInvalid.
func (c *Codec) Verify(raw string, kind Kind) (*Verified, error) {
	var secret []byte
	switch kind {
	case Access:
		secret = c.accessSecret
	case Refresh:
		secret = c.refreshSecret
	default:
		return nil, ErrInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, ErrInvalid
	}

	if claims.Type != kind {
		return nil, ErrInvalid
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return nil, ErrInvalid
	}

	v := &Verified{
		Payload:   Payload{UserID: uid, Role: claims.Role},
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		v.IssuedAt = claims.IssuedAt.Time
	}
	return v, nil
}
