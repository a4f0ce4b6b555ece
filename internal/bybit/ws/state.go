package ws

// State is the lifecycle of one stream connection:
// Connecting -> Open -> Subscribed -> Closed | Failed.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateSubscribed
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
