// Package oauth2 holds the wire shape returned by refresh endpoints.
package oauth2

import "time"

// TokenResponse is the body a refresh endpoint returns on success. It follows
// the RFC 6749 token endpoint response; only ExpiresIn, or failing that the
// exp claim of AccessToken, matters to the refresh scheduler.
type TokenResponse struct {
	// AccessToken is the renewed credential, usually a JWT.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token, present when the session was
	// opened with the "openid" scope.
	IdToken *string `json:"id_token,omitempty"`

	// TokenType is "bearer" for every endpoint this module talks to.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the remaining lifetime of the access token in seconds.
	// Example: 900 (for 15 minutes)
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is the rotated refresh credential when the endpoint
	// returns it in the body rather than as a cookie.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
}

// Lifetime returns ExpiresIn as a duration, or zero when it is absent.
func (t TokenResponse) Lifetime() time.Duration {
	if t.ExpiresIn <= 0 {
		return 0
	}
	return time.Duration(t.ExpiresIn) * time.Second
}
