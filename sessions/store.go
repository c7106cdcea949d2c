package sessions

import "context"

// User is the identity of the signed-in user.
type User struct {
	ID    string `json:"id,omitempty"`    // Unique identifier for the user
	Email string `json:"email,omitempty"` // User's email address
	Name  string `json:"name,omitempty"`  // Display name
}

// Store is the session store contract the lifecycle manager depends on. The
// store owns the user identity; the manager only reads it and asks for logout.
type Store interface {
	// User returns the current user and whether one is present.
	User() (*User, bool)

	// SetUser replaces the current user. A nil user clears the identity
	// locally without any network call.
	SetUser(user *User)

	// Logout clears the identity and the shared token expiry, which other
	// tabs observe as a logout.
	Logout(ctx context.Context) error
}
