package subscription

// State is the confirmation state of a subscription session.
//
//	Connecting → Subscribed → (Closed | Errored)
//	Errored → Connecting (retry)
//
// Only Subscribed is a trustworthy incremental source.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
