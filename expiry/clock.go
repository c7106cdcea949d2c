// Package expiry converts credential lifetimes into absolute expiry instants
// and works out how long to wait before refreshing proactively.
package expiry

import (
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Clock computes expiry instants and refresh delays against a time source.
// The zero value uses NowTimeFunc.
type Clock struct {
	nowFunc func() time.Time
}

// New returns a Clock reading the current time from now. A nil now falls
// back to NowTimeFunc.
func New(now func() time.Time) Clock {
	return Clock{nowFunc: now}
}

func (c Clock) now() time.Time {
	if c.nowFunc == nil {
		return NowTimeFunc()
	}
	return c.nowFunc()
}

// Expiry returns the absolute instant at which a credential with the given
// remaining lifetime becomes invalid.
func (c Clock) Expiry(remaining time.Duration) time.Time {
	return c.now().Add(remaining).Truncate(time.Millisecond)
}

// ExpiryFromSeconds is Expiry for lifetimes reported in whole seconds, the
// unit refresh endpoints use for expires_in.
func (c Clock) ExpiryFromSeconds(seconds int64) time.Time {
	return c.Expiry(time.Duration(seconds) * time.Second)
}

// RefreshDelay returns how long to wait before refreshing a credential that
// expires at expiry, leaving buffer as a safety margin. A zero result means
// the refresh is due now; callers run it immediately instead of arming a
// zero-delay timer.
func (c Clock) RefreshDelay(expiry time.Time, buffer time.Duration) time.Duration {
	delay := expiry.Sub(c.now()) - buffer
	if delay < 0 {
		return 0
	}
	return delay
}

// Due reports whether a refresh for expiry is due now.
func (c Clock) Due(expiry time.Time, buffer time.Duration) bool {
	return c.RefreshDelay(expiry, buffer) == 0
}

// Encode renders t as a decimal count of Unix milliseconds, the wire format
// shared through the persistent store.
func Encode(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Decode parses a value written by Encode.
func Decode(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, errors.Wrapf(errors.ErrMalformedTimestamp, "decode %q", value)
	}
	return time.UnixMilli(ms), nil
}
