package devserver

import (
	"encoding/json"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/jrsteele09/go-session-keeper/oauth2"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

const sessionScope = "session"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler signs the dev user in from a JSON or form body and sets the
// refresh cookie.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/json" {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				writeJSONError(w, "invalid_request", "Failed to parse login body", http.StatusBadRequest)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
				return
			}
			req.Email, req.Password = r.FormValue("email"), r.FormValue("password")
		}

		if !s.user.Authenticate(req.Email, req.Password) {
			writeJSONError(w, "invalid_grant", errors.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
			return
		}

		refreshToken, err := s.refreshTokens.Create(s.config.GetDevClientID(), s.user.ID, sessionScope)
		if err != nil {
			log.Err(err).Msg("Login: failed to create refresh token")
			writeJSONError(w, "server_error", "failed to create session", http.StatusInternalServerError)
			return
		}
		s.setRefreshCookie(w, refreshToken)
		s.writeTokens(w, s.config.GetDevClientID(), sessionScope, "")
	}
}

// RefreshHandler rotates the refresh cookie and returns a new access token.
// The request body is ignored.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil || cookie.Value == "" {
			writeJSONError(w, "invalid_grant", "missing refresh token", http.StatusUnauthorized)
			return
		}

		rt, next, err := s.refreshTokens.Rotate(cookie.Value)
		if err != nil {
			s.clearRefreshCookie(w)
			writeJSONError(w, "invalid_grant", err.Error(), http.StatusUnauthorized)
			return
		}
		s.setRefreshCookie(w, next)
		s.writeTokens(w, rt.ClientID, rt.Scope, "")
	}
}

// LogoutHandler revokes the refresh cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(RefreshCookieName); err == nil {
			s.refreshTokens.Revoke(cookie.Value)
		}
		s.clearRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"issuer":                                s.issuer,
			"token_endpoint":                        s.issuer + RouteOAuth2Token,
			"jwks_uri":                              s.issuer + RouteWellKnownJWKS,
			"revocation_endpoint":                   s.issuer + RouteOAuth2Revoke,
			"response_types_supported":              []string{"code"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"scopes_supported":                      []string{"openid", "email", "profile", "offline_access"},
			"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
			"grant_types_supported":                 []string{"password", "refresh_token"},
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate ID tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(s.idSigner.JWKS())
	}
}

// Token serves the password and refresh_token grants.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}

		clientID, clientSecret, ok := r.BasicAuth()
		if !ok {
			clientID, clientSecret = r.PostFormValue("client_id"), r.PostFormValue("client_secret")
		}
		if clientID != s.config.GetDevClientID() || clientSecret != s.config.GetDevClientSecret() {
			writeJSONError(w, "invalid_client", "unknown client", http.StatusUnauthorized)
			return
		}

		switch grantType := r.PostFormValue("grant_type"); grantType {
		case "password":
			if !s.user.Authenticate(r.PostFormValue("username"), r.PostFormValue("password")) {
				writeJSONError(w, "invalid_grant", errors.ErrInvalidCredentials.Error(), http.StatusBadRequest)
				return
			}
			scope := r.PostFormValue("scope")
			refreshToken, err := s.refreshTokens.Create(clientID, s.user.ID, scope)
			if err != nil {
				log.Err(err).Msg("Token: failed to create refresh token")
				writeJSONError(w, "server_error", "failed to create refresh token", http.StatusInternalServerError)
				return
			}
			s.writeTokens(w, clientID, scope, refreshToken)

		case "refresh_token":
			rt, next, err := s.refreshTokens.Rotate(r.PostFormValue("refresh_token"))
			if err != nil {
				writeJSONError(w, "invalid_grant", err.Error(), http.StatusBadRequest)
				return
			}
			if rt.ClientID != clientID {
				s.refreshTokens.Revoke(next)
				writeJSONError(w, "invalid_grant", "refresh token was issued to another client", http.StatusBadRequest)
				return
			}
			s.writeTokens(w, clientID, rt.Scope, next)

		default:
			writeJSONError(w, "unsupported_grant_type", grantType, http.StatusBadRequest)
		}
	}
}

// Revoke revokes a refresh token (RFC 7009). Unknown tokens still succeed.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		s.refreshTokens.Revoke(r.PostFormValue("token"))
		w.WriteHeader(http.StatusOK)
	}
}

// writeTokens issues an access token, plus an ID token for the openid scope,
// and writes the token response. refreshToken goes in the body when set.
func (s *Server) writeTokens(w http.ResponseWriter, clientID, scope, refreshToken string) {
	accessToken, err := s.creator.CreateAccessToken(s.user, clientID, scope)
	if err != nil {
		log.Err(err).Msg("Failed to create access token")
		writeJSONError(w, "server_error", "failed to create access token", http.StatusInternalServerError)
		return
	}

	resp := oauth2.TokenResponse{
		AccessToken:  &accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.creator.AccessTokenExpiry().Seconds()),
		Scope:        scope,
		RefreshToken: utils.PtrOrNil(refreshToken),
	}
	if slices.Contains(strings.Fields(scope), "openid") {
		idToken, err := s.creator.CreateIDToken(s.user, clientID)
		if err != nil {
			log.Err(err).Msg("Failed to create id token")
			writeJSONError(w, "server_error", "failed to create id token", http.StatusInternalServerError)
			return
		}
		resp.IdToken = &idToken
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(s.config.GetRefreshTokenExpiry().Seconds()),
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteLaxMode,
	})
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
