package devserver

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Signer turns claims into a compact JWT.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
}

// hmacSigner signs access tokens. The session keeper only reads their exp
// claim, so a shared secret is enough.
type hmacSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) Signer {
	return hmacSigner{secret: []byte(secret)}
}

func (h hmacSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "hmacSigner.Sign")
	}
	return signed, nil
}

// RSASigner signs ID tokens with a key generated at startup. The public half
// is published as a JWKS so OIDC clients can verify them.
type RSASigner struct {
	kid string
	key *rsa.PrivateKey
}

// NewRSASigner generates a key of at least 2048 bits.
func NewRSASigner(bits int) (*RSASigner, error) {
	key, err := rsa.GenerateKey(rand.Reader, max(bits, 2048))
	if err != nil {
		return nil, errors.Wrap(err, "NewRSASigner GenerateKey")
	}
	return &RSASigner{kid: uuid.New().String(), key: key}, nil
}

func (s *RSASigner) KeyID() string {
	return s.kid
}

func (s *RSASigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, "RSASigner.Sign")
	}
	return signed, nil
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is an RSA public signing key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"` // modulus, base64url
	E   string `json:"e,omitempty"` // exponent, base64url
}

// JWKS publishes the verification key.
func (s *RSASigner) JWKS() JWKS {
	pub := s.key.PublicKey
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: s.kid,
		Alg: jwt.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}
