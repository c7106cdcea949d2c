package config

import (
	"fmt"
	"strings"
	"time"
)

type DevServerConfig interface {
	GetPort() string
	GetIssuer() string
	GetSigningKey() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetDevUserEmail() string
	GetDevUserPassword() string
	GetDevClientID() string
	GetDevClientSecret() string
	CorsConfig
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type DevServer struct {
	Port               string        `yaml:"port"                 env:"PORT"                 env-default:"8080"`
	Issuer             string        `yaml:"issuer"               env:"ISSUER"               env-default:"http://localhost:8080"`
	SigningKey         string        `yaml:"signing_key"          env:"SIGNING_KEY"          env-default:"dev-signing-key-change-me"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry"  env:"ACCESS_TOKEN_EXPIRY"  env-default:"15m"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry" env:"REFRESH_TOKEN_EXPIRY" env-default:"168h"`
	UserEmail          string        `yaml:"user_email"           env:"DEV_USER_EMAIL"       env-default:"john.doe@example.com"`
	UserPassword       string        `yaml:"user_password"        env:"DEV_USER_PASSWORD"    env-default:"Password1"`
	ClientID           string        `yaml:"client_id"            env:"DEV_CLIENT_ID"        env-default:"sessionkeeper"`
	ClientSecret       string        `yaml:"client_secret"        env:"DEV_CLIENT_SECRET"    env-default:"sessionkeeper-secret"`
	AllowedOrigins     []string      `yaml:"allowed_origins"      env:"ALLOWED_ORIGINS"      env-separator:"," env-default:"http://localhost:5173"`
}

var _ DevServerConfig = mainConfig{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetPort returns the listen address, e.g. ":8080".
func (c mainConfig) GetPort() string {
	port := c.DevServer.Port
	if port == "" {
		port = "8080"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c mainConfig) GetIssuer() string {
	return strings.TrimSuffix(c.DevServer.Issuer, "/")
}

func (c mainConfig) GetSigningKey() string {
	return c.DevServer.SigningKey
}

func (c mainConfig) GetAccessTokenExpiry() time.Duration {
	return c.DevServer.AccessTokenExpiry
}

func (c mainConfig) GetRefreshTokenExpiry() time.Duration {
	return c.DevServer.RefreshTokenExpiry
}

func (c mainConfig) GetDevUserEmail() string {
	return c.DevServer.UserEmail
}

func (c mainConfig) GetDevUserPassword() string {
	return c.DevServer.UserPassword
}

func (c mainConfig) GetDevClientID() string {
	return c.DevServer.ClientID
}

func (c mainConfig) GetDevClientSecret() string {
	return c.DevServer.ClientSecret
}

func (c mainConfig) GetAllowedOrigins() AllowedOrigins {
	origins := make(AllowedOrigins, len(c.DevServer.AllowedOrigins))
	for _, o := range c.DevServer.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = nullValue{}
		}
	}
	return origins
}

func (c mainConfig) GetAllowedMethods() string {
	return "POST, OPTIONS"
}

func (c mainConfig) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
