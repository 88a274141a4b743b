// Package message defines the CAN message handed to applications once a
// single frame or a transport session has been received.
package message

import (
	"errors"
	"fmt"
	"sync/atomic"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/identifier"
)

// Message size limits in bytes
const (
	DataLength               = 8         // Classic CAN frame payload
	AbsoluteMaxMessageLength = 117440505 // ETP limit
)

var ErrOutOfRange = errors.New("read past end of message data")

// Type is where a message came from
type Type uint8

const (
	Transmit Type = iota // Sent by this stack
	Receive              // Received from the bus
	Internal             // Generated inside the stack
)

// String returns string representation of Type
func (t Type) String() string {
	switch t {
	case Transmit:
		return "Transmit"
	case Receive:
		return "Receive"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ByteFormat selects the byte order of multi-byte reads
type ByteFormat uint8

const (
	LittleEndian ByteFormat = iota
	BigEndian
)

var lastID atomic.Uint32

// NextUniqueID returns a process wide increasing message ID.
func NextUniqueID() uint32 {
	return lastID.Add(1)
}

// CANMessage is a complete message. Source is nil when the sender has not
// claimed an address we know of; Destination is nil for broadcasts.
type CANMessage struct {
	Type         Type
	Identifier   identifier.Identifier
	Source       *controlfunction.ControlFunction
	Destination  *controlfunction.ControlFunction
	Data         []byte
	ChannelIndex uint8
	UniqueID     uint32
}

// New creates a message with a fresh unique ID.
func New(t Type, id identifier.Identifier, channel uint8, data []byte) *CANMessage {
	return &CANMessage{
		Type:         t,
		Identifier:   id,
		Data:         data,
		ChannelIndex: channel,
		UniqueID:     NextUniqueID(),
	}
}

// PGN returns the parameter group number.
func (m *CANMessage) PGN() uint32 {
	return m.Identifier.PGN()
}

// Len returns the payload length.
func (m *CANMessage) Len() int {
	return len(m.Data)
}

// IsBroadcast reports whether the message was sent to the global address.
func (m *CANMessage) IsBroadcast() bool {
	return m.Destination == nil
}

func (m *CANMessage) uintAt(index, size int, format ByteFormat) (uint64, error) {
	if index < 0 || index+size > len(m.Data) {
		return 0, fmt.Errorf("%w: %d bytes at %d of %d", ErrOutOfRange, size, index, len(m.Data))
	}
	var v uint64
	for i := 0; i < size; i++ {
		b := uint64(m.Data[index+i])
		if format == LittleEndian {
			v |= b << (8 * i)
		} else {
			v = v<<8 | b
		}
	}
	return v, nil
}

// Uint8At returns the byte at index.
func (m *CANMessage) Uint8At(index int) (uint8, error) {
	v, err := m.uintAt(index, 1, LittleEndian)
	return uint8(v), err
}

// Uint16At returns two bytes at index.
func (m *CANMessage) Uint16At(index int, format ByteFormat) (uint16, error) {
	v, err := m.uintAt(index, 2, format)
	return uint16(v), err
}

// Uint24At returns three bytes at index in the low 24 bits.
func (m *CANMessage) Uint24At(index int, format ByteFormat) (uint32, error) {
	v, err := m.uintAt(index, 3, format)
	return uint32(v), err
}

// Uint32At returns four bytes at index.
func (m *CANMessage) Uint32At(index int, format ByteFormat) (uint32, error) {
	v, err := m.uintAt(index, 4, format)
	return uint32(v), err
}

// Uint64At returns eight bytes at index.
func (m *CANMessage) Uint64At(index int, format ByteFormat) (uint64, error) {
	return m.uintAt(index, 8, format)
}

// BoolAt reports whether the length bits starting at bitIndex of the byte
// at byteIndex are all set. ISO 11783 encodes two-bit states this way.
func (m *CANMessage) BoolAt(byteIndex int, bitIndex, length uint8) (bool, error) {
	b, err := m.Uint8At(byteIndex)
	if err != nil {
		return false, err
	}
	if length == 0 || bitIndex+length > 8 {
		return false, fmt.Errorf("%w: bits %d+%d", ErrOutOfRange, bitIndex, length)
	}
	mask := uint8((1<<length)-1) << bitIndex
	return b&mask == mask, nil
}

// String returns string representation of the message
func (m *CANMessage) String() string {
	return fmt.Sprintf("CANMessage{#%d %s ch=%d PGN=0x%05X len=%d SA=0x%02X DA=0x%02X}",
		m.UniqueID, m.Type, m.ChannelIndex, m.PGN(), len(m.Data),
		m.Identifier.SourceAddress(), m.Identifier.DestinationAddress())
}
