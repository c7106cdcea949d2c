package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/rs/zerolog"
)

// LogoutHook runs after the local session has been cleared, typically to
// revoke the refresh credential server side.
type LogoutHook func(ctx context.Context) error

// MemoryStore keeps the user in memory and publishes the session keys through
// a crosstab.Signal.
type MemoryStore struct {
	mu     sync.RWMutex
	user   *User
	signal *crosstab.Signal
	hook   LogoutHook
	logger zerolog.Logger

	subsMu sync.Mutex
	subs   map[int]func(*User)
	nextID int
}

var _ Store = (*MemoryStore)(nil)

type MemoryStoreOption func(*MemoryStore)

func WithLogoutHook(hook LogoutHook) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.hook = hook
	}
}

func WithLogger(logger zerolog.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

func NewMemoryStore(signal *crosstab.Signal, options ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		signal: signal,
		logger: zerolog.Nop(),
		subs:   make(map[int]func(*User)),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "sessions").Logger()
	return s
}

func (s *MemoryStore) User() (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

func (s *MemoryStore) SetUser(user *User) {
	s.mu.Lock()
	if user == nil {
		s.user = nil
	} else {
		u := *user
		s.user = &u
	}
	s.mu.Unlock()
	s.notify(user)
}

// SignIn records a freshly authenticated user together with the expiry of
// the credential they were issued, and returns the diagnostic session ID.
func (s *MemoryStore) SignIn(user *User, expiresAt time.Time) (string, error) {
	if user == nil {
		return "", errors.Wrapf(errors.ErrInvalidCredentials, "MemoryStore.SignIn nil user")
	}
	sessionID := uuid.New().String()
	if err := s.signal.WriteSessionID(sessionID); err != nil {
		return "", err
	}
	if err := s.signal.WriteExpiry(expiresAt); err != nil {
		return "", err
	}
	s.logger.Info().Str("user", user.ID).Str("session", sessionID).Time("expiry", expiresAt).Msg("signed in")
	s.SetUser(user)
	return sessionID, nil
}

// Logout clears the user and the shared session keys, then runs the logout
// hook. Calling it without a user present only clears the keys again.
func (s *MemoryStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	had := s.user != nil
	s.user = nil
	s.mu.Unlock()

	var errs []error
	if err := s.signal.Clear(); err != nil {
		errs = append(errs, err)
	}
	if had {
		s.notify(nil)
		if s.hook != nil {
			if err := s.hook(ctx); err != nil {
				errs = append(errs, errors.Wrapf(err, "MemoryStore.Logout hook"))
			}
		}
		s.logger.Info().Msg("logged out")
	}
	return errors.Join(errs...)
}

// Subscribe calls fn whenever the user changes. The returned function
// cancels the subscription.
func (s *MemoryStore) Subscribe(fn func(*User)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *MemoryStore) notify(user *User) {
	s.subsMu.Lock()
	fns := make([]func(*User), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(user)
	}
}
