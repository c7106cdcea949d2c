package config

import "strings"

type EndpointConfig interface {
	GetRefreshURL() string
	GetLoginURL() string
	GetLogoutURL() string
	GetOAuthTokenURL() string
	GetOAuthClientID() string
	GetOAuthClientSecret() string
	GetOAuthRefreshToken() string
	GetOAuthScopes() []string
	GetOIDCIssuer() string
	UseOAuth2() bool
}

// Endpoint selects how credentials are refreshed. With oauth.token_url set the
// refresh_token grant is used; otherwise the refresh URL is POSTed with the
// refresh cookie.
type Endpoint struct {
	RefreshURL string `yaml:"refresh_url" env:"REFRESH_URL" env-default:"http://localhost:8080/auth/refresh"`
	LoginURL   string `yaml:"login_url"   env:"LOGIN_URL"   env-default:"http://localhost:8080/auth/login"`
	LogoutURL  string `yaml:"logout_url"  env:"LOGOUT_URL"  env-default:"http://localhost:8080/auth/logout"`
	OAuth      OAuth  `yaml:"oauth"`
}

// OAuth configures the refresh_token grant. A non-empty Issuer enables
// id_token verification through OIDC discovery.
type OAuth struct {
	TokenURL     string   `yaml:"token_url"     env:"OAUTH_TOKEN_URL"`
	ClientID     string   `yaml:"client_id"     env:"OAUTH_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"OAUTH_CLIENT_SECRET"`
	RefreshToken string   `yaml:"refresh_token" env:"OAUTH_REFRESH_TOKEN"`
	Scopes       []string `yaml:"scopes"        env:"OAUTH_SCOPES"        env-separator:","`
	Issuer       string   `yaml:"issuer"        env:"OIDC_ISSUER"`
}

var _ EndpointConfig = mainConfig{}

func (c mainConfig) GetRefreshURL() string {
	return c.Endpoint.RefreshURL
}

func (c mainConfig) GetLoginURL() string {
	return c.Endpoint.LoginURL
}

func (c mainConfig) GetLogoutURL() string {
	return c.Endpoint.LogoutURL
}

func (c mainConfig) GetOAuthTokenURL() string {
	return c.Endpoint.OAuth.TokenURL
}

func (c mainConfig) GetOAuthClientID() string {
	return c.Endpoint.OAuth.ClientID
}

func (c mainConfig) GetOAuthClientSecret() string {
	return c.Endpoint.OAuth.ClientSecret
}

func (c mainConfig) GetOAuthRefreshToken() string {
	return c.Endpoint.OAuth.RefreshToken
}

func (c mainConfig) GetOAuthScopes() []string {
	return c.Endpoint.OAuth.Scopes
}

func (c mainConfig) GetOIDCIssuer() string {
	return strings.TrimSuffix(c.Endpoint.OAuth.Issuer, "/")
}

func (c mainConfig) UseOAuth2() bool {
	return c.Endpoint.OAuth.TokenURL != ""
}
