// Package oidc talks to the external identity provider (Google) through the
// authorization code flow and turns a verified ID token into a profile.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/config"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"golang.org/x/oauth2"
)

// IDToken is a minimal interface for token payloads that allows extracting claims
// It is satisfied by *oidc.IDToken and by test fakes.
type IDToken interface {
	Claims(v interface{}) error
}

// TokenVerifier checks a raw ID token's signature, issuer, audience and expiry.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (IDToken, error)
}

// CodeExchanger is the part of *oauth2.Config the provider uses.
type CodeExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// Verifier wraps the OIDC token verifier
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewVerifier(v *oidc.IDTokenVerifier) *Verifier {
	return &Verifier{verifier: v}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (IDToken, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Provider runs the code flow against one identity provider.
type Provider struct {
	oauth    CodeExchanger
	verifier TokenVerifier
}

func NewProvider(oauth CodeExchanger, verifier TokenVerifier) *Provider {
	return &Provider{oauth: oauth, verifier: verifier}
}

// NewGoogleProvider discovers the issuer's endpoints and keys.
func NewGoogleProvider(ctx context.Context, cfg config.GoogleConfig) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	oauth := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	verifier := NewVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}))
	return NewProvider(oauth, verifier), nil
}

// AuthCodeURL returns the consent page URL. state doubles as the ID token nonce.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oidc.Nonce(state))
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

// some issuers send email_verified as the string "true"
func verifiedFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

// Exchange redeems the authorization code and returns the verified profile.
// Every failure is an OAuthRejected error.
func (p *Provider) Exchange(ctx context.Context, code, state string) (models.ExternalProfile, error) {
	if code == "" {
		return models.ExternalProfile{}, apperr.New(apperr.KindOAuthRejected, "missing authorization code")
	}
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return models.ExternalProfile{}, apperr.Wrap(apperr.KindOAuthRejected, "code exchange failed", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return models.ExternalProfile{}, apperr.New(apperr.KindOAuthRejected, "provider returned no id_token")
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return models.ExternalProfile{}, apperr.Wrap(apperr.KindOAuthRejected, "id_token verification failed", err)
	}
	var c googleClaims
	if err := idToken.Claims(&c); err != nil {
		return models.ExternalProfile{}, apperr.Wrap(apperr.KindOAuthRejected, "unreadable id_token claims", err)
	}
	if state != "" && c.Nonce != state {
		return models.ExternalProfile{}, apperr.Wrap(apperr.KindOAuthRejected, "nonce mismatch", errors.New("id_token nonce does not match state"))
	}
	return models.ExternalProfile{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: verifiedFlag(c.EmailVerified),
		Name:          c.Name,
	}, nil
}
