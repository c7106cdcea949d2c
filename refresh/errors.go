package refresh

import "github.com/jrsteele09/go-session-keeper/internal/errors"

var (
	ErrRefreshInFlight    = errors.ErrRefreshInFlight
	ErrRefreshFailed      = errors.ErrRefreshFailed
	ErrCredentialRejected = errors.ErrCredentialRejected
	ErrRefreshPanicked    = errors.ErrRefreshPanicked
	ErrExpiryNotAdvanced  = errors.ErrExpiryNotAdvanced
	ErrMissingLifetime    = errors.ErrMissingLifetime
)
