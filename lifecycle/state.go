package lifecycle

// State is the position of a Manager in its refresh state machine.
type State int32

const (
	// Idle means there is nothing to refresh: no user, or no stored expiry.
	Idle State = iota
	// Scheduled means the proactive refresh timer is armed.
	Scheduled
	// Refreshing means a refresh call is outstanding.
	Refreshing
	// Disabled is terminal for the mount.
	Disabled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Refreshing:
		return "refreshing"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}
