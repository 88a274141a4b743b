package transport

// Parameter groups of ISO 11783-3 transport
const (
	PGNTransportCM         uint32 = 0xEC00 // TP.CM connection management
	PGNTransportDT         uint32 = 0xEB00 // TP.DT data transfer
	PGNExtendedTransportCM uint32 = 0xC800 // ETP.CM connection management
	PGNExtendedTransportDT uint32 = 0xC700 // ETP.DT data transfer
)

// TP.CM control bytes
const (
	tpRequestToSend     uint8 = 0x10
	tpClearToSend       uint8 = 0x11
	tpEndOfMessageAck   uint8 = 0x13
	tpBroadcastAnnounce uint8 = 0x20
	connectionAbort     uint8 = 0xFF
)

// ETP.CM control bytes
const (
	etpRequestToSend    uint8 = 0x14
	etpClearToSend      uint8 = 0x15
	etpDataPacketOffset uint8 = 0x16
	etpEndOfMessageAck  uint8 = 0x17
)

// Size limits
const (
	FrameLength                = 8
	BytesPerPacket             = 7
	MaxTPLength                = 1785      // 255 packets of 7 bytes
	MaxETPLength               = 117440505 // 0xFFFFFF packets of 7 bytes
	MinMultiPacketLength       = 9
	noPacketLimit        uint8 = 0xFF
	reservedByte         uint8 = 0xFF
)

// Mode is the transport protocol a session runs
type Mode uint8

const (
	ModeTP  Mode = iota // Connection mode, peer to peer
	ModeBAM             // Broadcast announce
	ModeETP             // Extended, peer to peer
)

// String returns string representation of Mode
func (m Mode) String() string {
	switch m {
	case ModeTP:
		return "TP"
	case ModeBAM:
		return "BAM"
	case ModeETP:
		return "ETP"
	default:
		return "Unknown"
	}
}

// Direction of a session relative to this stack
type Direction uint8

const (
	Transmit Direction = iota
	Receive
)

// String returns string representation of Direction
func (d Direction) String() string {
	if d == Transmit {
		return "Tx"
	}
	return "Rx"
}

// State is the position of a session in its state machine
type State uint8

const (
	StateIdle                State = iota // Created, nothing sent yet
	StateRequestedToSend                  // Tx: waiting for clear to send
	StateClearToSendReceived              // Tx: window granted, burst not started
	StateSending                          // Tx: sending data frames
	StateWaitingForEndAck                 // Tx: all data sent, waiting for end of message ack
	StateAnnounced                        // BAM Tx: announcement sent
	StateRequestReceived                  // Rx: clear to send owed to the sender
	StateClearToSendSent                  // Rx: waiting for the first frame of a window
	StateReceiving                        // Rx: accumulating data frames
	StateHolding                          // Rx: sender asked to wait by hold frames
	StateComplete
	StateAborted
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRequestedToSend:
		return "RequestedToSend"
	case StateClearToSendReceived:
		return "ClearToSendReceived"
	case StateSending:
		return "Sending"
	case StateWaitingForEndAck:
		return "WaitingForEndAck"
	case StateAnnounced:
		return "Announced"
	case StateRequestReceived:
		return "RequestReceived"
	case StateClearToSendSent:
		return "ClearToSendSent"
	case StateReceiving:
		return "Receiving"
	case StateHolding:
		return "Holding"
	case StateComplete:
		return "Complete"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// AbortReason is the reason byte of a connection abort
type AbortReason uint8

const (
	AbortReasonNone                         AbortReason = 0
	AbortAlreadyInSession                   AbortReason = 1
	AbortSystemResourcesNeeded              AbortReason = 2
	AbortTimeout                            AbortReason = 3
	AbortClearToSendWhileTransferInProgress AbortReason = 4
	AbortMaxRetransmitRequestLimitReached   AbortReason = 5
	AbortUnexpectedDataTransfer             AbortReason = 6
	AbortBadSequenceNumber                  AbortReason = 7
	AbortDuplicateSequenceNumber            AbortReason = 8
	AbortUnexpectedDataPacketOffset         AbortReason = 9
	AbortUnexpectedDataPacketOffsetPGN      AbortReason = 10
	AbortDataPacketOffsetExceedsClearToSend AbortReason = 11
	AbortBadDataPacketOffset                AbortReason = 12
	AbortUnexpectedClearToSendPGN           AbortReason = 14
	AbortClearToSendExceedsMessageSize      AbortReason = 15
	AbortOther                              AbortReason = 250
)

// String returns string representation of AbortReason
func (r AbortReason) String() string {
	switch r {
	case AbortReasonNone:
		return "None"
	case AbortAlreadyInSession:
		return "AlreadyInSession"
	case AbortSystemResourcesNeeded:
		return "SystemResourcesNeeded"
	case AbortTimeout:
		return "Timeout"
	case AbortClearToSendWhileTransferInProgress:
		return "ClearToSendWhileTransferInProgress"
	case AbortMaxRetransmitRequestLimitReached:
		return "MaxRetransmitRequestLimitReached"
	case AbortUnexpectedDataTransfer:
		return "UnexpectedDataTransfer"
	case AbortBadSequenceNumber:
		return "BadSequenceNumber"
	case AbortDuplicateSequenceNumber:
		return "DuplicateSequenceNumber"
	case AbortUnexpectedDataPacketOffset:
		return "UnexpectedDataPacketOffset"
	case AbortUnexpectedDataPacketOffsetPGN:
		return "UnexpectedDataPacketOffsetPGN"
	case AbortDataPacketOffsetExceedsClearToSend:
		return "DataPacketOffsetExceedsClearToSend"
	case AbortBadDataPacketOffset:
		return "BadDataPacketOffset"
	case AbortUnexpectedClearToSendPGN:
		return "UnexpectedClearToSendPGN"
	case AbortClearToSendExceedsMessageSize:
		return "ClearToSendExceedsMessageSize"
	case AbortOther:
		return "Other"
	default:
		return "Reserved"
	}
}

// IsTransportPGN reports whether pgn belongs to the session engine.
func IsTransportPGN(pgn uint32) bool {
	switch pgn {
	case PGNTransportCM, PGNTransportDT, PGNExtendedTransportCM, PGNExtendedTransportDT:
		return true
	}
	return false
}

// PacketCount returns the number of 7-byte packets needed for length bytes.
func PacketCount(length int) uint32 {
	return uint32((length + BytesPerPacket - 1) / BytesPerPacket)
}

// ModeFor returns the mode used to send length bytes. broadcast selects
// BAM for lengths up to MaxTPLength.
func ModeFor(length int, broadcast bool) (Mode, error) {
	switch {
	case length > MaxETPLength:
		return ModeETP, ErrMessageTooLong
	case length > MaxTPLength && broadcast:
		return ModeBAM, ErrMessageTooLong
	case length > MaxTPLength:
		return ModeETP, nil
	case broadcast:
		return ModeBAM, nil
	default:
		return ModeTP, nil
	}
}
