// Package crosstab shares the credential expiry and the logout marker between
// every tab (process or handle) that uses the same persistent store.
//
// A Store handle never receives notifications for its own writes; only the
// other handles sharing the store do.
package crosstab

// Keys written to the shared store.
const (
	KeyTokenExpiry  = "TOKEN_EXPIRY"
	KeyLastActivity = "LAST_ACTIVITY"
	KeySessionID    = "SESSION_ID"
)

// Change describes a write or removal made by another handle.
type Change struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
}

// Store is one tab's view of the shared key/value store.
type Store interface {
	// Get returns the value for key and whether it is present.
	Get(key string) (string, bool, error)

	// Set writes value under key and notifies every other handle.
	Set(key, value string) error

	// Remove deletes key and notifies every other handle. Removing an absent
	// key is not an error and notifies nobody.
	Remove(key string) error

	// Subscribe registers fn for changes made by other handles. The returned
	// function cancels the subscription.
	Subscribe(fn func(Change)) (func(), error)
}
