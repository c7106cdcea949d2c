package devserver

// Route path constants
const (
	// Session routes used by the cookie based refresh endpoint
	RouteAuthLogin   = "/auth/login"
	RouteAuthRefresh = "/auth/refresh"
	RouteAuthLogout  = "/auth/logout"

	// OAuth2 / OIDC routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOAuth2Token           = "/oauth2/token"
	RouteOAuth2Revoke          = "/oauth2/revoke"
)

// RefreshCookieName carries the refresh token for the /auth routes.
const RefreshCookieName = "refresh_token"
