package isobus

import (
	"errors"

	"agisostack/isobus-go/pkg/transport"
)

// Send rejections. ErrSessionBusy, ErrBAMBusy, ErrTooManySessions and
// ErrHardwareBusy are temporary; the send may succeed later.
var (
	ErrSessionBusy     = transport.ErrSessionBusy
	ErrBAMBusy         = transport.ErrBAMBusy
	ErrTooManySessions = transport.ErrTooManySessions

	ErrHardwareBusy          = errors.New("hardware transmit queue full")
	ErrNoDestination         = errors.New("destination has no address")
	ErrAddressNotClaimed     = errors.New("source has not claimed an address")
	ErrInvalidSource         = errors.New("source must be an internal control function")
	ErrPayloadTooLarge       = errors.New("payload too large for transport")
	ErrEmptyPayload          = errors.New("payload is empty")
	ErrDestinationNotAllowed = errors.New("PGN is broadcast only")
	ErrChannelOutOfRange     = errors.New("channel out of range")
)

// IsTemporary reports whether a SendMessage error may clear up by itself.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrSessionBusy) ||
		errors.Is(err, ErrBAMBusy) ||
		errors.Is(err, ErrTooManySessions) ||
		errors.Is(err, ErrHardwareBusy)
}
