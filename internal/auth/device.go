package auth

// PollKind is the outcome of a single token poll.
type PollKind int

const (
	PollPending PollKind = iota
	PollSlowDown
	PollGranted
	PollExpired
	PollDenied
	PollOtherError
)

func (k PollKind) String() string {
	switch k {
	case PollPending:
		return "pending"
	case PollSlowDown:
		return "slow_down"
	case PollGranted:
		return "granted"
	case PollExpired:
		return "expired"
	case PollDenied:
		return "denied"
	default:
		return "other_error"
	}
}

// PollResult is the result of one token poll. Callers must handle every
// PollKind; unknown kinds are treated like PollOtherError.
type PollResult struct {
	Kind        PollKind
	AccessToken string // set for PollGranted
	Interval    int    // server-suggested interval in seconds, set for PollSlowDown when present
	Detail      string // set for PollOtherError
}
