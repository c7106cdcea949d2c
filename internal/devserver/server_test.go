package devserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/devserver"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/oauth2"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"
)

const (
	testEmail        = "john.doe@example.com"
	testPassword     = "Password1"
	testClientID     = "test-client-1"
	testClientSecret = "test-secret-1"
	testSigningKey   = "test-signing-key"
)

const testYAML = `
env: "DEV"
devserver:
  signing_key: "` + testSigningKey + `"
  access_token_expiry: "15m"
  refresh_token_expiry: "1h"
  user_email: "` + testEmail + `"
  user_password: "` + testPassword + `"
  client_id: "` + testClientID + `"
  client_secret: "` + testClientSecret + `"
  allowed_origins: ["https://app.example.com"]
`

type testFixture struct {
	ts     *httptest.Server
	server *devserver.Server

	mu     sync.Mutex
	offset time.Duration
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// The issuer must be known before the server starts serving.
	f := &testFixture{ts: httptest.NewUnstartedServer(nil)}
	issuer := "http://" + f.ts.Listener.Addr().String()
	f.server, err = devserver.New(cfg, devserver.WithIssuer(issuer), devserver.WithNowFunc(f.now))
	require.NoError(t, err)
	f.ts.Config.Handler = f.server
	f.ts.Start()
	t.Cleanup(f.ts.Close)
	require.Equal(t, f.ts.URL, issuer)
	return f
}

func (f *testFixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Now().Add(f.offset)
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.offset += d
	f.mu.Unlock()
}

func (f *testFixture) url(route string) string {
	return f.ts.URL + route
}

func (f *testFixture) login(t *testing.T, client *http.Client) *oauth2.TokenResponse {
	t.Helper()
	tokens, err := devserver.Login(context.Background(), client, f.url(devserver.RouteAuthLogin), testEmail, testPassword)
	require.NoError(t, err)
	return tokens
}

func newJarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("wrong password", func(t *testing.T) {
		_, err := devserver.Login(context.Background(), newJarClient(t), f.url(devserver.RouteAuthLogin), testEmail, "nope")
		require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	t.Run("json body", func(t *testing.T) {
		client := newJarClient(t)
		tokens := f.login(t, client)

		require.Equal(t, 900, tokens.ExpiresIn)
		require.Equal(t, "bearer", tokens.TokenType)
		require.Nil(t, tokens.RefreshToken, "cookie mode keeps the refresh token out of the body")
		require.Nil(t, tokens.IdToken)

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(*tokens.AccessToken, claims, func(token *jwt.Token) (any, error) {
			return []byte(testSigningKey), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		require.NoError(t, err)
		require.Equal(t, f.server.User().ID, claims["sub"])
		require.NotEmpty(t, claims["jti"])

		u, err := url.Parse(f.url(devserver.RouteAuthRefresh))
		require.NoError(t, err)
		cookies := client.Jar.Cookies(u)
		require.Len(t, cookies, 1)
		require.Equal(t, devserver.RefreshCookieName, cookies[0].Name)
	})

	t.Run("form body", func(t *testing.T) {
		resp, err := http.PostForm(f.url(devserver.RouteAuthLogin), url.Values{"email": {testEmail}, "password": {testPassword}})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var refreshCookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == devserver.RefreshCookieName {
				refreshCookie = c
			}
		}
		require.NotNil(t, refreshCookie)
		require.True(t, refreshCookie.HttpOnly)
		require.Equal(t, "/auth", refreshCookie.Path)
	})
}

func TestHTTPEndpoint_AgainstDevServer(t *testing.T) {
	f := setupTestFixture(t)
	ep := refresh.NewHTTPEndpoint(f.url(devserver.RouteAuthRefresh))
	f.login(t, ep.Client())

	refreshURL, err := url.Parse(f.url(devserver.RouteAuthRefresh))
	require.NoError(t, err)
	firstCookies := ep.Client().Jar.Cookies(refreshURL)

	lifetime, err := ep.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, lifetime)
	require.NotEmpty(t, ep.AccessToken())

	_, err = ep.Refresh(context.Background())
	require.NoError(t, err)

	// A rotated cookie is dead.
	stale := newJarClient(t)
	stale.Jar.SetCookies(refreshURL, firstCookies)
	_, err = refresh.NewHTTPEndpoint(f.url(devserver.RouteAuthRefresh), refresh.WithHTTPClient(stale)).Refresh(context.Background())
	require.ErrorIs(t, err, refresh.ErrCredentialRejected)

	t.Run("without cookie", func(t *testing.T) {
		_, err := refresh.NewHTTPEndpoint(f.url(devserver.RouteAuthRefresh)).Refresh(context.Background())
		require.ErrorIs(t, err, refresh.ErrCredentialRejected)
	})
}

func TestLogoutRevokesRefreshCookie(t *testing.T) {
	f := setupTestFixture(t)
	ep := refresh.NewHTTPEndpoint(f.url(devserver.RouteAuthRefresh))
	f.login(t, ep.Client())

	resp, err := ep.Client().Post(f.url(devserver.RouteAuthLogout), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = ep.Refresh(context.Background())
	require.ErrorIs(t, err, refresh.ErrCredentialRejected)
}

func TestRefreshTokenExpires(t *testing.T) {
	f := setupTestFixture(t)
	ep := refresh.NewHTTPEndpoint(f.url(devserver.RouteAuthRefresh))
	f.login(t, ep.Client())

	f.advance(59 * time.Minute)
	_, err := ep.Refresh(context.Background())
	require.NoError(t, err, "rotation restarts the refresh window")

	f.advance(61 * time.Minute)
	_, err = ep.Refresh(context.Background())
	require.ErrorIs(t, err, refresh.ErrCredentialRejected)
}

func oauthConfig(f *testFixture, secret string) *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     testClientID,
		ClientSecret: secret,
		Endpoint:     xoauth2.Endpoint{TokenURL: f.url(devserver.RouteOAuth2Token)},
		Scopes:       []string{"openid", "offline_access"},
	}
}

func TestOAuth2Endpoint_AgainstDevServer(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	cfg := oauthConfig(f, testClientSecret)

	initial, err := cfg.PasswordCredentialsToken(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, initial.RefreshToken)

	provider, err := oidc.NewProvider(ctx, f.ts.URL)
	require.NoError(t, err)
	verifier := provider.Verifier(&oidc.Config{ClientID: testClientID})

	ep := refresh.NewOAuth2Endpoint(cfg, initial.RefreshToken, refresh.WithIDTokenVerifier(verifier))
	lifetime, err := ep.Refresh(ctx)
	require.NoError(t, err)
	require.InDelta(t, (15 * time.Minute).Seconds(), lifetime.Seconds(), 5)

	rotated := ep.Token()
	require.NotEqual(t, initial.RefreshToken, rotated.RefreshToken)

	_, err = refresh.NewOAuth2Endpoint(cfg, initial.RefreshToken).Refresh(ctx)
	require.ErrorIs(t, err, refresh.ErrCredentialRejected, "the pre-rotation token is revoked")

	t.Run("id token for another audience", func(t *testing.T) {
		tok, err := cfg.PasswordCredentialsToken(ctx, testEmail, testPassword)
		require.NoError(t, err)
		other := provider.Verifier(&oidc.Config{ClientID: "someone-else"})
		_, err = refresh.NewOAuth2Endpoint(cfg, tok.RefreshToken, refresh.WithIDTokenVerifier(other)).Refresh(ctx)
		require.ErrorIs(t, err, refresh.ErrCredentialRejected)
	})

	t.Run("bad client secret", func(t *testing.T) {
		_, err := refresh.NewOAuth2Endpoint(oauthConfig(f, "wrong"), rotated.RefreshToken).Refresh(ctx)
		require.ErrorIs(t, err, refresh.ErrCredentialRejected)
	})
}

func TestWellKnownAndJWKS(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := http.Get(f.url(devserver.RouteWellKnownOpenIDConfig))
	require.NoError(t, err)
	defer resp.Body.Close()
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, f.ts.URL, doc["issuer"])
	require.Equal(t, f.ts.URL+devserver.RouteWellKnownJWKS, doc["jwks_uri"])

	resp, err = http.Get(f.url(devserver.RouteWellKnownJWKS))
	require.NoError(t, err)
	defer resp.Body.Close()
	var jwks devserver.JWKS
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RSA", jwks.Keys[0].Kty)
	require.Equal(t, "RS256", jwks.Keys[0].Alg)
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t)

	preflight := func(origin string) http.Header {
		req, err := http.NewRequest(http.MethodOptions, f.url(devserver.RouteAuthRefresh), nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return resp.Header
	}

	h := preflight("https://app.example.com")
	require.Equal(t, "https://app.example.com", h.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
	require.True(t, strings.Contains(h.Get("Access-Control-Allow-Methods"), "POST"))

	h = preflight("https://evil.example.com")
	require.Empty(t, h.Get("Access-Control-Allow-Origin"))
}
