package refresh

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OAuth2Endpoint refreshes with the OAuth 2.0 refresh_token grant and keeps
// the rotated refresh token for the next call.
type OAuth2Endpoint struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	nowFunc  func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

var _ Endpoint = (*OAuth2Endpoint)(nil)

type OAuth2Option func(*OAuth2Endpoint)

// WithIDTokenVerifier verifies the id_token returned with each refresh.
// A token that fails verification rejects the refresh.
func WithIDTokenVerifier(verifier *oidc.IDTokenVerifier) OAuth2Option {
	return func(e *OAuth2Endpoint) {
		e.verifier = verifier
	}
}

func WithOAuth2NowFunc(now func() time.Time) OAuth2Option {
	return func(e *OAuth2Endpoint) {
		e.nowFunc = now
	}
}

func NewOAuth2Endpoint(config *oauth2.Config, refreshToken string, options ...OAuth2Option) *OAuth2Endpoint {
	e := &OAuth2Endpoint{
		config:  config,
		nowFunc: time.Now,
		token:   &oauth2.Token{RefreshToken: refreshToken},
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Token returns a copy of the latest token.
func (e *OAuth2Endpoint) Token() oauth2.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.token
}

func (e *OAuth2Endpoint) Refresh(ctx context.Context) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token.RefreshToken == "" {
		return 0, errors.Wrap(ErrCredentialRejected, "no refresh token")
	}

	src := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: e.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return 0, fmt.Errorf("%w: %w", ErrCredentialRejected, err)
			}
		}
		return 0, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if e.verifier != nil {
		if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
			if _, err := e.verifier.Verify(ctx, raw); err != nil {
				return 0, fmt.Errorf("%w: %w", ErrCredentialRejected, errors.Wrap(err, "verifying id_token"))
			}
		}
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = e.token.RefreshToken
	}
	e.token = tok

	if tok.Expiry.IsZero() {
		return 0, ErrMissingLifetime
	}
	lifetime := tok.Expiry.Sub(e.nowFunc())
	if lifetime <= 0 {
		return 0, fmt.Errorf("%w: token already expired", ErrRefreshFailed)
	}
	return lifetime, nil
}
