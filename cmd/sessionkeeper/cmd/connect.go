package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-keeper/expiry"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/devserver"
	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"golang.org/x/oauth2"
)

// connection is a signed-in session ready to be handed to the manager.
type connection struct {
	endpoint  refresh.Endpoint
	user      *sessions.User
	expiresAt time.Time
	logout    sessions.LogoutHook
}

func connect(ctx context.Context, cfg config.Config) (*connection, error) {
	if cfg.UseOAuth2() {
		return connectOAuth2(ctx, cfg)
	}
	return connectCookie(ctx, cfg)
}

// connectCookie signs in at the login URL; the refresh cookie it sets is
// what the endpoint presents on every refresh.
func connectCookie(ctx context.Context, cfg config.Config) (*connection, error) {
	if !login {
		return nil, errors.New("the cookie refresh endpoint needs --login to obtain a refresh cookie")
	}
	ep := refresh.NewHTTPEndpoint(cfg.GetRefreshURL())
	tokens, err := devserver.Login(ctx, ep.Client(), cfg.GetLoginURL(), accountEmail(cfg), accountPassword(cfg))
	if err != nil {
		return nil, fmt.Errorf("login at %s failed: %w", cfg.GetLoginURL(), err)
	}
	if tokens.Lifetime() <= 0 {
		return nil, refresh.ErrMissingLifetime
	}
	return &connection{
		endpoint:  ep,
		user:      userFromAccessToken(utils.Value(tokens.AccessToken), accountEmail(cfg)),
		expiresAt: expiry.New(time.Now).Expiry(tokens.Lifetime()),
		logout: func(ctx context.Context) error {
			return postLogout(ctx, ep.Client(), cfg.GetLogoutURL())
		},
	}, nil
}

// connectOAuth2 uses the password grant when logging in, otherwise resumes
// from the configured refresh token with an immediate refresh.
func connectOAuth2(ctx context.Context, cfg config.Config) (*connection, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GetOAuthClientID(),
		ClientSecret: cfg.GetOAuthClientSecret(),
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.GetOAuthTokenURL()},
		Scopes:       cfg.GetOAuthScopes(),
	}

	var (
		options  []refresh.OAuth2Option
		verifier *oidc.IDTokenVerifier
	)
	if issuer := cfg.GetOIDCIssuer(); issuer != "" {
		provider, err := oidc.NewProvider(ctx, issuer)
		if err != nil {
			return nil, fmt.Errorf("OIDC discovery for %s failed: %w", issuer, err)
		}
		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.GetOAuthClientID()})
		options = append(options, refresh.WithIDTokenVerifier(verifier))
	}

	conn := &connection{
		user:      &sessions.User{ID: cfg.GetOAuthClientID()},
		expiresAt: time.Now(),
	}
	refreshToken := cfg.GetOAuthRefreshToken()
	if login {
		tok, err := oauthConfig.PasswordCredentialsToken(ctx, accountEmail(cfg), accountPassword(cfg))
		if err != nil {
			return nil, fmt.Errorf("password grant failed: %w", err)
		}
		refreshToken = tok.RefreshToken
		if !tok.Expiry.IsZero() {
			conn.expiresAt = tok.Expiry
		}
		conn.user, err = userFromToken(ctx, tok, verifier, accountEmail(cfg))
		if err != nil {
			return nil, err
		}
	} else if refreshToken == "" {
		return nil, errors.New("no OAuth2 refresh token configured; use --login or set OAUTH_REFRESH_TOKEN")
	}
	conn.endpoint = refresh.NewOAuth2Endpoint(oauthConfig, refreshToken, options...)
	return conn, nil
}

func userFromToken(ctx context.Context, tok *oauth2.Token, verifier *oidc.IDTokenVerifier, fallback string) (*sessions.User, error) {
	raw, _ := tok.Extra("id_token").(string)
	if verifier == nil || raw == "" {
		return userFromAccessToken(tok.AccessToken, fallback), nil
	}
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("id_token verification failed: %w", err)
	}
	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to read id_token claims: %w", err)
	}
	return &sessions.User{ID: idToken.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// userFromAccessToken reads the subject of a JWT access token without
// verifying it; it only labels the session. Opaque tokens fall back to email.
func userFromAccessToken(raw, email string) *sessions.User {
	user := &sessions.User{ID: email, Email: email}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return user
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		user.ID = sub
	}
	return user
}

func postLogout(ctx context.Context, client *http.Client, logoutURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, logoutURL, nil)
	if err != nil {
		return fmt.Errorf("postLogout NewRequest: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("postLogout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("postLogout: status %d", resp.StatusCode)
	}
	return nil
}

func accountEmail(cfg config.DevServerConfig) string {
	if email != "" {
		return email
	}
	return cfg.GetDevUserEmail()
}

func accountPassword(cfg config.DevServerConfig) string {
	if password != "" {
		return password
	}
	return cfg.GetDevUserPassword()
}
