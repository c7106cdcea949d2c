// Package devserver is a local stand-in for the credential refresh endpoint.
// It signs in one configured account and serves both refresh styles the
// session keeper speaks: a cookie based POST /auth/refresh and an OAuth2
// token endpoint with OIDC discovery.
package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Config interface {
	config.EnvConfig
	config.DevServerConfig
}

type Server struct {
	env           string
	mux           *http.ServeMux
	routes        []string
	config        Config
	issuer        string
	nowFunc       func() time.Time
	user          *DevUser
	creator       *Creator
	idSigner      *RSASigner
	refreshTokens *RefreshTokens
}

type Option func(*Server)

// WithIssuer overrides the configured issuer, for servers whose address is
// only known once they listen.
func WithIssuer(issuer string) Option {
	return func(s *Server) {
		s.issuer = strings.TrimSuffix(issuer, "/")
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(cfg Config, options ...Option) (*Server, error) {
	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		issuer:  cfg.GetIssuer(),
		nowFunc: func() time.Time { return NowTimeFunc() },
	}
	for _, opt := range options {
		opt(s)
	}

	user, err := NewDevUser(cfg.GetDevUserEmail(), cfg.GetDevUserPassword())
	if err != nil {
		return nil, fmt.Errorf("[devserver New] failed to create dev user: %w", err)
	}
	s.user = user

	s.idSigner, err = NewRSASigner(2048)
	if err != nil {
		return nil, fmt.Errorf("[devserver New] failed to generate signing key: %w", err)
	}
	s.creator = NewCreator(s.issuer, cfg.GetAccessTokenExpiry(), NewHMACSigner(cfg.GetSigningKey()), s.idSigner, s.nowFunc)
	s.refreshTokens = NewRefreshTokens(NewMemoryRefreshTokenRepo(), cfg.GetRefreshTokenExpiry(), s.nowFunc)

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

// Issuer is the base URL the server advertises.
func (s *Server) Issuer() string {
	return s.issuer
}

// User returns the dev account.
func (s *Server) User() *DevUser {
	return s.user
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "ANY", route
		}
		log.Info().Str("method", method).Str("path", path).Msg("route")
	}
}
