package coordinator

// State is the position of the coordinator in its request/response cycle.
type State int

// The four states of a transaction.
const (
	// StateIdle accepts a new request.
	StateIdle State = iota

	// StatePending waits for the peripheral to reply.
	StatePending

	// StateCompleted holds a reply until it is fetched.
	StateCompleted

	// StateExpired holds a timeout until it is fetched.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePending:
		return "Pending"
	case StateCompleted:
		return "Completed"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}
