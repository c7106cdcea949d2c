package devserver

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DevUser is the single account the dev server signs in.
type DevUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// NewDevUser creates the account, hashing password with bcrypt.
func NewDevUser(email, password string) (*DevUser, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	name, _, _ := strings.Cut(email, "@")
	return &DevUser{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Authenticate reports whether email and password match the account.
func (u *DevUser) Authenticate(email, password string) bool {
	return strings.EqualFold(u.Email, strings.TrimSpace(email)) && CheckPasswordHash(password, u.PasswordHash)
}
