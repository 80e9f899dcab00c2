// Package auth runs the session lifecycle: password login, refresh token
// rotation, logout and OAuth sign-in.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/events"
	"github.com/storefront/storefront/backend/auth-service/internal/linking"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/storefront/storefront/backend/auth-service/internal/password"
	"github.com/storefront/storefront/backend/auth-service/internal/sessions"
	"github.com/storefront/storefront/backend/auth-service/internal/tokens"
	"github.com/storefront/storefront/backend/auth-service/internal/users"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
	"github.com/storefront/storefront/backend/auth-service/pkg/metrics"
)

// UserDirectory looks users up. Misses are (nil, nil).
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type TokenCodec interface {
	IssueAccessToken(p tokens.Payload) (tokens.Issued, error)
	IssueRefreshToken(p tokens.Payload) (tokens.Issued, error)
	Verify(raw string, kind tokens.Kind) (*tokens.Verified, error)
}

// CredentialVerifier is satisfied by *password.Hasher.
type CredentialVerifier interface {
	Verify(plain string, stored *string) error
	Equalize(plain string)
}

type AccountLinker interface {
	Resolve(ctx context.Context, p models.ExternalProfile) (*linking.Result, error)
}

// Session is a freshly issued token pair. RefreshToken must only travel in the cookie.
type Session struct {
	User             *models.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

const (
	opLogin   = "login"
	opRefresh = "refresh"
	opLogout  = "logout"
	opOAuth   = "oauth"
	opRevoke  = "revoke_all"
)

type Service struct {
	users     UserDirectory
	codec     TokenCodec
	creds     CredentialVerifier
	store     sessions.Store
	linker    AccountLinker
	publisher events.Publisher
}

func NewService(u UserDirectory, codec TokenCodec, creds CredentialVerifier, store sessions.Store) *Service {
	return &Service{
		users:     u,
		codec:     codec,
		creds:     creds,
		store:     store,
		publisher: events.LogPublisher{},
	}
}

func (s *Service) WithLinker(l AccountLinker) *Service {
	s.linker = l
	return s
}

func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

func observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.AuthOperations.WithLabelValues(op, outcome).Inc()
}

func invalidCredentials() error {
	return apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
}

// Login checks email and password and issues a session. Unknown email and wrong
// password fail identically.
func (s *Service) Login(ctx context.Context, email, plain string) (sess *Session, err error) {
	defer func() { observe(opLogin, err) }()

	email = users.NormalizeEmail(email)
	if email == "" || plain == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "email and password are required")
	}
	if len(plain) > password.MaxLength {
		return nil, apperr.New(apperr.KindInvalidInput, "password too long").With("field", "password")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	if u == nil {
		s.creds.Equalize(plain)
		return nil, invalidCredentials()
	}

	switch err := s.creds.Verify(plain, u.PasswordHash); {
	case err == nil:
	case errors.Is(err, password.ErrNoPassword):
		return nil, apperr.New(apperr.KindOAuthOnlyAccount, "this account uses social login")
	case errors.Is(err, password.ErrMismatch):
		logger.InfoFields("login_failed", logger.Fields{"user_id": u.ID})
		return nil, invalidCredentials()
	default:
		return nil, apperr.Wrap(apperr.KindInternal, "verify password", err)
	}

	sess, err = s.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	logger.InfoFields("login_succeeded", logger.Fields{"user_id": u.ID})
	return sess, nil
}

// issue signs a new pair for u and stores the refresh token.
func (s *Service) issue(ctx context.Context, u *models.User) (*Session, error) {
	p := tokens.Payload{UserID: u.ID, Role: u.Role}
	access, err := s.codec.IssueAccessToken(p)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "sign access token", err)
	}
	refresh, err := s.codec.IssueRefreshToken(p)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "sign refresh token", err)
	}
	if err := s.store.Insert(ctx, u.ID, refresh.Token, refresh.ExpiresAt); err != nil {
		if errors.Is(err, sessions.ErrDuplicateToken) {
			return nil, apperr.Wrap(apperr.KindInternal, "store refresh token", err)
		}
		return nil, apperr.Storage("store refresh token", err)
	}
	return &Session{
		User:             u,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Refresh exchanges a stored refresh token for a new pair. The store is consulted
// before any signature work, and the old token is consumed only after the new
// one is stored. Losing the consume to a concurrent caller revokes every
// session of the user.
func (s *Service) Refresh(ctx context.Context, raw string) (sess *Session, err error) {
	defer func() { observe(opRefresh, err) }()

	if raw == "" {
		return nil, apperr.New(apperr.KindTokenMissing, "refresh token missing")
	}

	rec, err := s.store.FindByToken(ctx, raw)
	if err != nil {
		return nil, apperr.Storage("find refresh token", err)
	}
	if rec == nil {
		return nil, apperr.New(apperr.KindTokenRevoked, "refresh token revoked")
	}

	v, verr := s.codec.Verify(raw, tokens.Refresh)
	if verr != nil || v.UserID != rec.UserID {
		if err := s.store.DeleteByToken(ctx, raw); err != nil {
			return nil, apperr.Storage("delete refresh token", err)
		}
		metrics.SessionsRevoked.WithLabelValues("invalid").Inc()
		if verr == nil {
			verr = tokens.ErrInvalid
		}
		return nil, apperr.Wrap(apperr.KindTokenInvalid, "refresh token invalid", verr)
	}

	u, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	if u == nil {
		if err := s.store.DeleteByToken(ctx, raw); err != nil {
			return nil, apperr.Storage("delete refresh token", err)
		}
		metrics.SessionsRevoked.WithLabelValues("user_gone").Inc()
		return nil, apperr.New(apperr.KindUserNotFound, "user no longer exists").With("user_id", rec.UserID)
	}

	sess, err = s.issue(ctx, u)
	if err != nil {
		return nil, err
	}

	old, err := s.store.Consume(ctx, raw)
	if err != nil {
		return nil, apperr.Storage("consume refresh token", err)
	}
	if old == nil {
		revoked, derr := s.store.DeleteAllForUser(ctx, u.ID)
		if derr != nil {
			return nil, apperr.Storage("revoke sessions", derr)
		}
		metrics.RefreshReuse.Inc()
		metrics.SessionsRevoked.WithLabelValues("reuse").Add(float64(revoked))
		logger.WarnFields("refresh_token_reuse", logger.Fields{"user_id": u.ID, "token": logger.Fingerprint(raw), "revoked": revoked})
		events.Send(ctx, s.publisher, events.New(events.SessionReuseDetected, u.ID, map[string]any{"revoked": revoked}))
		return nil, apperr.New(apperr.KindTokenRevoked, "refresh token revoked")
	}
	metrics.SessionsRevoked.WithLabelValues("rotated").Inc()
	return sess, nil
}

// Logout revokes every session of the token's owner. Missing and unknown tokens
// succeed. The owner comes from the stored record, so an expired but stored
// token still logs out.
func (s *Service) Logout(ctx context.Context, raw string) (err error) {
	defer func() { observe(opLogout, err) }()

	if raw == "" {
		return nil
	}
	rec, err := s.store.FindByToken(ctx, raw)
	if err != nil {
		return apperr.Storage("find refresh token", err)
	}
	if rec == nil {
		return nil
	}

	if err := s.store.DeleteByToken(ctx, raw); err != nil {
		return apperr.Storage("delete refresh token", err)
	}
	revoked, err := s.store.DeleteAllForUser(ctx, rec.UserID)
	if err != nil {
		return apperr.Storage("revoke sessions", err)
	}
	metrics.SessionsRevoked.WithLabelValues("logout").Add(float64(revoked + 1))
	logger.InfoFields("logout", logger.Fields{"user_id": rec.UserID, "revoked": revoked + 1})
	events.Send(ctx, s.publisher, events.New(events.SessionLogoutAll, rec.UserID, map[string]any{"revoked": revoked + 1}))
	return nil
}

// OAuthLogin resolves the provider profile to a local user and issues a session.
func (s *Service) OAuthLogin(ctx context.Context, p models.ExternalProfile) (sess *Session, err error) {
	defer func() { observe(opOAuth, err) }()

	if s.linker == nil {
		return nil, apperr.New(apperr.KindInternal, "external sign-in is not configured")
	}
	res, err := s.linker.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	sess, err = s.issue(ctx, res.User)
	if err != nil {
		return nil, err
	}
	logger.InfoFields("oauth_login_succeeded", logger.Fields{"user_id": res.User.ID, "outcome": res.Outcome.String()})
	return sess, nil
}

// RevokeAll deletes every refresh token of userID and returns how many were removed.
func (s *Service) RevokeAll(ctx context.Context, userID int64) (n int64, err error) {
	defer func() { observe(opRevoke, err) }()

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, apperr.Storage("find user", err)
	}
	if u == nil {
		return 0, apperr.New(apperr.KindUserNotFound, "user not found").With("user_id", userID)
	}
	n, err = s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, apperr.Storage("revoke sessions", err)
	}
	metrics.SessionsRevoked.WithLabelValues("admin").Add(float64(n))
	events.Send(ctx, s.publisher, events.New(events.SessionRevokedByAdmin, userID, map[string]any{"revoked": n}))
	return n, nil
}
