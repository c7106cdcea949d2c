package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
)

// StoredRefreshToken is the server-side record behind an opaque refresh
// token. The client only ever sees Token.
type StoredRefreshToken struct {
	Token    string
	UserID   string
	ClientID string
	Scope    string
	Iat      time.Time
}

// RefreshTokenRepo stores refresh token records keyed by token.
type RefreshTokenRepo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}

var _ RefreshTokenRepo = (*memoryRefreshTokenRepo)(nil)

type memoryRefreshTokenRepo struct {
	tokens  map[string]*StoredRefreshToken
	userIDs map[string]string // user ID to token
	lock    sync.RWMutex
}

func NewMemoryRefreshTokenRepo() RefreshTokenRepo {
	return &memoryRefreshTokenRepo{
		tokens:  make(map[string]*StoredRefreshToken),
		userIDs: make(map[string]string),
	}
}

func (tr *memoryRefreshTokenRepo) Upsert(refreshToken *StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.tokens[refreshToken.Token] = refreshToken
	tr.userIDs[refreshToken.UserID] = refreshToken.Token
	return nil
}

func (tr *memoryRefreshTokenRepo) Delete(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return errors.ErrInvalidRefreshToken
	}
	if tr.userIDs[rt.UserID] == token {
		delete(tr.userIDs, rt.UserID)
	}
	delete(tr.tokens, token)
	return nil
}

func (tr *memoryRefreshTokenRepo) Get(token string) (*StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	rt, ok := tr.tokens[token]
	if !ok {
		return nil, errors.ErrInvalidRefreshToken
	}
	return rt, nil
}

func (tr *memoryRefreshTokenRepo) GetByUserID(userID string) (*StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	token, ok := tr.userIDs[userID]
	if !ok {
		return nil, errors.ErrInvalidRefreshToken
	}
	return tr.tokens[token], nil
}

// RefreshTokens issues, rotates and revokes refresh tokens. Each user holds
// at most one live token; rotation invalidates the presented one.
type RefreshTokens struct {
	repo    RefreshTokenRepo
	expiry  time.Duration
	nowFunc func() time.Time
	mu      sync.Mutex
}

func NewRefreshTokens(repo RefreshTokenRepo, expiry time.Duration, nowFunc func() time.Time) *RefreshTokens {
	return &RefreshTokens{repo: repo, expiry: expiry, nowFunc: nowFunc}
}

// Create generates a new refresh token, replacing any the user already had.
func (m *RefreshTokens) Create(clientID, userID, scope string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(clientID, userID, scope)
}

func (m *RefreshTokens) createLocked(clientID, userID, scope string) (string, error) {
	if existing, err := m.repo.GetByUserID(userID); err == nil && existing != nil {
		if err := m.repo.Delete(existing.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:    tokenStr,
		UserID:   userID,
		ClientID: clientID,
		Scope:    scope,
		Iat:      m.nowFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return tokenStr, nil
}

// Rotate validates token, revokes it and issues its replacement.
func (m *RefreshTokens) Rotate(token string) (*StoredRefreshToken, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, "", err
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, "", errors.ErrRefreshTokenExpired
	}
	next, err := m.createLocked(rt.ClientID, rt.UserID, rt.Scope)
	if err != nil {
		return nil, "", err
	}
	return rt, next, nil
}

// Revoke deletes token. Unknown tokens are ignored.
func (m *RefreshTokens) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.repo.Delete(token)
}

// IsExpired checks if a refresh token has outlived the configured expiry.
func (m *RefreshTokens) IsExpired(rt *StoredRefreshToken) bool {
	return m.nowFunc().Sub(rt.Iat) > m.expiry
}
