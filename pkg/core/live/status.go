package live

// Status represents the current state of the voice session. Exactly one
// value holds at a time; it is owned exclusively by the Session and only
// read by consumers.
type Status int

const (
	// StatusIdle is the rest state; a new start is accepted.
	StatusIdle Status = iota
	// StatusConnecting covers microphone acquisition and the transport
	// handshake.
	StatusConnecting
	// StatusActive is a live conversation.
	StatusActive
	// StatusError is a terminated session with a user-visible error; a new
	// start is accepted.
	StatusError
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusActive:
		return "ACTIVE"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// canStart reports whether a start is accepted from this status.
func (s Status) canStart() bool {
	return s == StatusIdle || s == StatusError
}
