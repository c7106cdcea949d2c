package devserver

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Creator builds the access and ID tokens returned by the dev server.
type Creator struct {
	issuer       string
	accessExpiry time.Duration
	accessSigner Signer
	idSigner     Signer
	nowFunc      func() time.Time
}

func NewCreator(issuer string, accessExpiry time.Duration, accessSigner, idSigner Signer, nowFunc func() time.Time) *Creator {
	return &Creator{
		issuer:       issuer,
		accessExpiry: accessExpiry,
		accessSigner: accessSigner,
		idSigner:     idSigner,
		nowFunc:      nowFunc,
	}
}

// AccessTokenExpiry is the lifetime reported as expires_in.
func (c *Creator) AccessTokenExpiry() time.Duration {
	return c.accessExpiry
}

// CreateAccessToken creates an access token for user.
func (c *Creator) CreateAccessToken(user *DevUser, clientID, scope string) (string, error) {
	now := c.nowFunc()
	claims := jwtlib.MapClaims{
		"iss":       c.issuer,
		"sub":       user.ID,
		"client_id": clientID,
		"scope":     scope,
		"iat":       now.Unix(),
		"exp":       now.Add(c.accessExpiry).Unix(),
		"jti":       uuid.New().String(), // Unique token ID for revocation
	}
	return c.sign(claims, c.accessSigner)
}

// CreateIDToken creates an OpenID Connect ID token with identity claims only.
func (c *Creator) CreateIDToken(user *DevUser, clientID string) (string, error) {
	now := c.nowFunc()
	claims := jwtlib.MapClaims{
		"iss":   c.issuer,
		"sub":   user.ID,
		"aud":   clientID,
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(c.accessExpiry).Unix(),
		"jti":   uuid.New().String(),
	}
	return c.sign(claims, c.idSigner)
}

func (c *Creator) sign(claims jwtlib.MapClaims, signer Signer) (string, error) {
	signedToken, err := signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signedToken, nil
}
