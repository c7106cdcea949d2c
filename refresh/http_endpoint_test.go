package refresh_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/jrsteele09/go-session-keeper/oauth2"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestHTTPEndpoint_ExpiresIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "yes", r.Header.Get("X-Requested-With"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Empty(t, body)

		writeJSON(t, w, oauth2.TokenResponse{
			AccessToken: utils.Ptr("access-1"),
			TokenType:   "bearer",
			ExpiresIn:   900,
		})
	}))
	defer srv.Close()

	ep := refresh.NewHTTPEndpoint(srv.URL, refresh.WithHeader("X-Requested-With", "yes"))
	lifetime, err := ep.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 900*time.Second, lifetime)
	require.Equal(t, "access-1", ep.AccessToken())
}

func TestHTTPEndpoint_LifetimeFromJWT(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, oauth2.TokenResponse{AccessToken: &signed, TokenType: "bearer"})
	}))
	defer srv.Close()

	ep := refresh.NewHTTPEndpoint(srv.URL, refresh.WithNowFunc(func() time.Time { return now }))
	lifetime, err := ep.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, lifetime)

	t.Run("expired token", func(t *testing.T) {
		late := refresh.NewHTTPEndpoint(srv.URL, refresh.WithNowFunc(func() time.Time { return now.Add(time.Hour) }))
		_, err := late.Refresh(context.Background())
		require.ErrorIs(t, err, refresh.ErrRefreshFailed)
	})
}

func TestHTTPEndpoint_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			want:    refresh.ErrCredentialRejected,
		},
		{
			name:    "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			want:    refresh.ErrCredentialRejected,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    refresh.ErrRefreshFailed,
		},
		{
			name:    "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			want:    refresh.ErrRefreshFailed,
		},
		{
			name: "no lifetime",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
			},
			want: refresh.ErrMissingLifetime,
		},
		{
			name: "opaque access token without expires_in",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"access_token":"opaque"}`))
			},
			want: refresh.ErrMissingLifetime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := refresh.NewHTTPEndpoint(srv.URL).Refresh(context.Background())
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := refresh.NewHTTPEndpoint(url).Refresh(context.Background())
		require.ErrorIs(t, err, refresh.ErrRefreshFailed)
	})
}

func TestHTTPEndpoint_RotatesCookie(t *testing.T) {
	var issued atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Load()
		if n > 0 {
			c, err := r.Cookie("refresh_token")
			if err != nil || c.Value != "rt-"+string(rune('0'+n)) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		n = issued.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt-" + string(rune('0'+n)), Path: "/"})
		writeJSON(t, w, oauth2.TokenResponse{ExpiresIn: 60})
	}))
	defer srv.Close()

	ep := refresh.NewHTTPEndpoint(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := ep.Refresh(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), issued.Load())
}
