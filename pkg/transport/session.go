package transport

import (
	"fmt"
	"time"

	"agisostack/isobus-go/pkg/identifier"
)

// CompleteFunc is called once when a transmit session ends. err is nil on
// success and an *AbortError otherwise.
type CompleteFunc func(info SessionInfo, err error)

// Message is a reassembled multi-frame message.
type Message struct {
	Channel     uint8
	PGN         uint32
	Priority    identifier.Priority
	Source      uint8
	Destination uint8 // GlobalAddress for BAM
	Mode        Mode
	Data        []byte
}

// MessageFunc receives every completed receive session.
type MessageFunc func(msg Message)

// SessionInfo is a snapshot of one session.
type SessionInfo struct {
	Mode             Mode
	Direction        Direction
	State            State
	Channel          uint8
	PGN              uint32
	Source           uint8
	Destination      uint8
	TotalBytes       int
	BytesTransferred int
}

// Progress returns the transferred fraction in 0..1
func (i SessionInfo) Progress() float64 {
	if i.TotalBytes == 0 {
		return 0
	}
	return float64(i.BytesTransferred) / float64(i.TotalBytes)
}

// String returns string representation of the session
func (i SessionInfo) String() string {
	return fmt.Sprintf("%s %s PGN 0x%05X 0x%02X->0x%02X ch=%d %s %d/%d",
		i.Mode, i.Direction, i.PGN, i.Source, i.Destination, i.Channel, i.State,
		i.BytesTransferred, i.TotalBytes)
}

// sessionKey identifies a session slot. TP and ETP share a slot; a BAM
// slot has destination GlobalAddress.
type sessionKey struct {
	channel     uint8
	source      uint8
	destination uint8
	direction   Direction
}

type session struct {
	key      sessionKey
	mode     Mode
	state    State
	pgn      uint32
	priority identifier.Priority

	data         []byte // Tx payload
	rx           *reassembler
	totalBytes   int
	totalPackets uint32

	nextPacket uint32 // absolute 1-based packet to send or expect next
	windowEnd  uint32 // last absolute packet of the current window
	dpoOffset  uint32 // ETP packets preceding the current window
	dpoPending bool   // ETP Tx owes a data packet offset frame
	maxPerCTS  uint32 // Rx: window limit announced by the sender
	held       bool   // Rx: send hold frames instead of the next clear to send

	lastActivity time.Time
	timeout      time.Duration
	onComplete   CompleteFunc
}

func (s *session) setState(state State, now time.Time, timeout time.Duration) {
	s.state = state
	s.lastActivity = now
	s.timeout = timeout
}

func (s *session) touch(now time.Time) {
	s.lastActivity = now
}

func (s *session) expired(now time.Time) bool {
	return now.Sub(s.lastActivity) > s.timeout
}

func (s *session) bytesTransferred() int {
	if s.key.direction == Receive {
		if s.rx == nil {
			return 0
		}
		return s.rx.received
	}
	n := int(s.nextPacket-1) * BytesPerPacket
	if n > s.totalBytes {
		n = s.totalBytes
	}
	if n < 0 {
		n = 0
	}
	return n
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		Mode:             s.mode,
		Direction:        s.key.direction,
		State:            s.state,
		Channel:          s.key.channel,
		PGN:              s.pgn,
		Source:           s.key.source,
		Destination:      s.key.destination,
		TotalBytes:       s.totalBytes,
		BytesTransferred: s.bytesTransferred(),
	}
}

func (s *session) controlPGN() uint32 {
	if s.mode == ModeETP {
		return PGNExtendedTransportCM
	}
	return PGNTransportCM
}

func (s *session) dataPGN() uint32 {
	if s.mode == ModeETP {
		return PGNExtendedTransportDT
	}
	return PGNTransportDT
}

// localAddress is the address this stack sends session frames from.
func (s *session) localAddress() uint8 {
	if s.key.direction == Transmit {
		return s.key.source
	}
	return s.key.destination
}

func (s *session) remoteAddress() uint8 {
	if s.key.direction == Transmit {
		return s.key.destination
	}
	return s.key.source
}

// windowSeq is the wire sequence number of an absolute packet.
func (s *session) windowSeq(packet uint32) uint8 {
	if s.mode == ModeETP {
		return uint8(packet - s.dpoOffset)
	}
	return uint8(packet)
}

func (s *session) abortError(reason AbortReason, remote bool) *AbortError {
	return &AbortError{
		Reason:      reason,
		Mode:        s.mode,
		Direction:   s.key.direction,
		PGN:         s.pgn,
		Source:      s.key.source,
		Destination: s.key.destination,
		Remote:      remote,
	}
}
