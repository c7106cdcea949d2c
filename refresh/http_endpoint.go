package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/jrsteele09/go-session-keeper/oauth2"
	"github.com/pkg/errors"
)

const maxResponseBytes = 1 << 20

// HTTPEndpoint refreshes by POSTing an empty body to a URL. The refresh
// credential travels as a cookie, so the default client carries a jar.
type HTTPEndpoint struct {
	url     string
	client  *http.Client
	header  http.Header
	nowFunc func() time.Time

	mu          sync.RWMutex
	accessToken string
}

var _ Endpoint = (*HTTPEndpoint)(nil)

type HTTPEndpointOption func(*HTTPEndpoint)

// WithHTTPClient replaces the default client. The client should keep a
// cookie jar if the endpoint uses cookies.
func WithHTTPClient(client *http.Client) HTTPEndpointOption {
	return func(e *HTTPEndpoint) {
		e.client = client
	}
}

// WithHeader adds a header to every refresh request.
func WithHeader(key, value string) HTTPEndpointOption {
	return func(e *HTTPEndpoint) {
		e.header.Add(key, value)
	}
}

// WithNowFunc sets the time source used when the lifetime comes from a JWT
// exp claim.
func WithNowFunc(now func() time.Time) HTTPEndpointOption {
	return func(e *HTTPEndpoint) {
		e.nowFunc = now
	}
}

func NewHTTPEndpoint(url string, options ...HTTPEndpointOption) *HTTPEndpoint {
	e := &HTTPEndpoint{
		url:     url,
		header:  make(http.Header),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.client == nil {
		jar, _ := cookiejar.New(nil)
		e.client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	return e
}

// Client returns the HTTP client, so a login call can share its cookie jar.
func (e *HTTPEndpoint) Client() *http.Client {
	return e.client
}

// AccessToken returns the access token from the latest successful refresh.
func (e *HTTPEndpoint) AccessToken() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accessToken
}

// Refresh implements Endpoint. 401 and 403 map to ErrCredentialRejected,
// every other failure to ErrRefreshFailed.
func (e *HTTPEndpoint) Refresh(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, http.NoBody)
	if err != nil {
		return 0, errors.Wrap(err, "HTTPEndpoint.Refresh NewRequest")
	}
	for k, v := range e.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return 0, fmt.Errorf("%w: status %d", ErrCredentialRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return 0, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var body oauth2.TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRefreshFailed, errors.Wrap(err, "decoding refresh response"))
	}

	accessToken := utils.Value(body.AccessToken)
	if accessToken != "" {
		e.mu.Lock()
		e.accessToken = accessToken
		e.mu.Unlock()
	}

	if lifetime := body.Lifetime(); lifetime > 0 {
		return lifetime, nil
	}
	if accessToken != "" {
		return e.lifetimeFromJWT(accessToken)
	}
	return 0, ErrMissingLifetime
}

// lifetimeFromJWT reads the exp claim without verifying the signature; the
// token was just received over the refresh channel and is only used for
// scheduling.
func (e *HTTPEndpoint) lifetimeFromJWT(raw string) (time.Duration, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMissingLifetime, errors.Wrap(err, "parsing access token"))
	}
	if claims.ExpiresAt == nil {
		return 0, errors.Wrap(ErrMissingLifetime, "access token has no exp claim")
	}
	lifetime := claims.ExpiresAt.Time.Sub(e.nowFunc())
	if lifetime <= 0 {
		return 0, fmt.Errorf("%w: access token already expired", ErrRefreshFailed)
	}
	return lifetime, nil
}
