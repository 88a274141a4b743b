package transport

import (
	"errors"
	"fmt"
)

var (
	ErrMessageTooLong  = errors.New("message too long for transport mode")
	ErrMessageTooShort = errors.New("message fits in a single frame")
	ErrSessionBusy     = errors.New("transport session slot in use")
	ErrBAMBusy         = errors.New("broadcast session already active on channel")
	ErrTooManySessions = errors.New("session limit reached")
	ErrMalformedFrame  = errors.New("malformed transport frame")
	ErrNoSession       = errors.New("no matching transport session")
	ErrInvalidAddress  = errors.New("invalid transport address")
)

// AbortError reports why a session ended without delivering its message.
type AbortError struct {
	Reason      AbortReason
	Mode        Mode
	Direction   Direction
	PGN         uint32
	Source      uint8
	Destination uint8
	Remote      bool // Abort came from the peer
}

func (e *AbortError) Error() string {
	origin := "local"
	if e.Remote {
		origin = "remote"
	}
	return fmt.Sprintf("%s %s session PGN 0x%05X 0x%02X->0x%02X aborted (%s): %s",
		e.Mode, e.Direction, e.PGN, e.Source, e.Destination, origin, e.Reason)
}

// IsTimeout reports whether the session was aborted for inactivity.
func (e *AbortError) IsTimeout() bool {
	return e.Reason == AbortTimeout
}
