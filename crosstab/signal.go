package crosstab

import (
	"time"

	"github.com/jrsteele09/go-session-keeper/expiry"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/rs/zerolog"
)

// ExpiryChange is a TOKEN_EXPIRY change made by another tab. Cleared means
// the other tab logged out.
type ExpiryChange struct {
	Cleared bool
	Expiry  time.Time
}

// Signal reads and writes the session keys on a Store.
type Signal struct {
	store  Store
	logger zerolog.Logger
}

type SignalOption func(*Signal)

func WithLogger(logger zerolog.Logger) SignalOption {
	return func(s *Signal) {
		s.logger = logger
	}
}

func NewSignal(store Store, options ...SignalOption) *Signal {
	s := &Signal{
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "crosstab").Logger()
	return s
}

// WriteExpiry persists the token expiry so other tabs reschedule against it.
func (s *Signal) WriteExpiry(t time.Time) error {
	if err := s.store.Set(KeyTokenExpiry, expiry.Encode(t)); err != nil {
		return errors.Wrapf(err, "Signal.WriteExpiry")
	}
	return nil
}

// ReadExpiry returns the stored token expiry, if any.
func (s *Signal) ReadExpiry() (time.Time, bool, error) {
	return s.readTime(KeyTokenExpiry)
}

// ClearExpiry removes the token expiry, which other tabs treat as logout.
func (s *Signal) ClearExpiry() error {
	if err := s.store.Remove(KeyTokenExpiry); err != nil {
		return errors.Wrapf(err, "Signal.ClearExpiry")
	}
	return nil
}

// Clear removes every session key, token expiry first.
func (s *Signal) Clear() error {
	if err := s.ClearExpiry(); err != nil {
		return err
	}
	for _, key := range []string{KeyLastActivity, KeySessionID} {
		if err := s.store.Remove(key); err != nil {
			return errors.Wrapf(err, "Signal.Clear %s", key)
		}
	}
	return nil
}

// TouchActivity records t as the last observed activity.
func (s *Signal) TouchActivity(t time.Time) error {
	if err := s.store.Set(KeyLastActivity, expiry.Encode(t)); err != nil {
		return errors.Wrapf(err, "Signal.TouchActivity")
	}
	return nil
}

// LastActivity returns the advisory last-activity marker.
func (s *Signal) LastActivity() (time.Time, bool, error) {
	return s.readTime(KeyLastActivity)
}

// WriteSessionID stores the diagnostic session identifier.
func (s *Signal) WriteSessionID(id string) error {
	if err := s.store.Set(KeySessionID, id); err != nil {
		return errors.Wrapf(err, "Signal.WriteSessionID")
	}
	return nil
}

func (s *Signal) SessionID() (string, bool, error) {
	return s.store.Get(KeySessionID)
}

// OnForeignChange calls fn for every TOKEN_EXPIRY change made by another tab.
// Values that do not decode are logged and dropped.
func (s *Signal) OnForeignChange(fn func(ExpiryChange)) (func(), error) {
	cancel, err := s.store.Subscribe(func(c Change) {
		if c.Key != KeyTokenExpiry {
			return
		}
		if c.Removed {
			fn(ExpiryChange{Cleared: true})
			return
		}
		t, err := expiry.Decode(c.NewValue)
		if err != nil {
			s.logger.Warn().Err(err).Msg("ignoring foreign expiry")
			return
		}
		fn(ExpiryChange{Expiry: t})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Signal.OnForeignChange")
	}
	return cancel, nil
}

func (s *Signal) readTime(key string) (time.Time, bool, error) {
	v, ok, err := s.store.Get(key)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "Signal read %s", key)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := expiry.Decode(v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
