package identifier

import "fmt"

// Addresses with special meaning on an ISO 11783 network
const (
	GlobalAddress uint8 = 0xFF // Broadcast destination
	NullAddress   uint8 = 0xFE // Used by devices that have not claimed an address
	MaxAddress    uint8 = 0xFD // Highest address a device can claim
)

// UndefinedPGN is returned for identifiers that carry no parameter group
const UndefinedPGN uint32 = 0xFFFFFFFF

// Bit layout of the 29-bit identifier
const (
	TypeBitMask         uint32 = 0x80000000 // Marks an extended identifier in the logical value
	ExtendedIDMask      uint32 = 0x1FFFFFFF
	StandardIDMask      uint32 = 0x000007FF
	PriorityOffset             = 26
	PGNOffset                  = 8
	PDU2Threshold       uint8  = 0xF0 // PDU format bytes at or above this are broadcast only
	BroadcastPGNMask    uint32 = 0x0003FFFF
	DestinationPGNMask  uint32 = 0x0003FF00
	dataPageMask        uint32 = 0x00010000
	extendedDataPageBit uint32 = 0x00020000
)

// Type is the frame format of an identifier
type Type uint8

const (
	Standard Type = iota // 11-bit identifier
	Extended             // 29-bit identifier
)

// String returns string representation of Type
func (t Type) String() string {
	if t == Extended {
		return "Extended"
	}
	return "Standard"
}

// Priority is the 3-bit message priority, 0 is the highest
type Priority uint8

const (
	PriorityHighest0 Priority = iota
	Priority1
	Priority2
	Priority3
	Priority4
	Priority5
	PriorityDefault6
	PriorityLowest7
)

// Identifier is a decoded CAN identifier. The zero value is a standard
// identifier with ID 0.
type Identifier struct {
	raw uint32
}

// Encode packs the fields of a CAN identifier into its 32-bit logical
// value. Fields wider than their slot are truncated. For PDU1 (destination
// specific) PGNs the destination replaces the PS byte of the PGN; for PDU2
// PGNs the destination is ignored.
func Encode(t Type, pgn uint32, priority Priority, destination, source uint8) uint32 {
	if t == Standard {
		return uint32(source)
	}

	raw := TypeBitMask | (uint32(priority)&0x07)<<PriorityOffset
	if isPDU1(pgn) {
		raw |= (pgn & DestinationPGNMask) << PGNOffset
		raw |= uint32(destination) << PGNOffset
	} else {
		raw |= (pgn & BroadcastPGNMask) << PGNOffset
	}
	raw |= uint32(source)
	return raw
}

// New returns the identifier for the given fields.
func New(t Type, pgn uint32, priority Priority, destination, source uint8) Identifier {
	return Identifier{raw: Encode(t, pgn, priority, destination, source)}
}

// Decode wraps a logical value produced by Encode.
func Decode(raw uint32) Identifier {
	return Identifier{raw: raw}
}

// FromFrame builds an identifier from the ID and format flag of a
// received frame.
func FromFrame(id uint32, extended bool) Identifier {
	if extended {
		return Identifier{raw: TypeBitMask | id&ExtendedIDMask}
	}
	return Identifier{raw: id & StandardIDMask}
}

func isPDU1(pgn uint32) bool {
	return uint8(pgn>>8) < PDU2Threshold
}

// IsPDU1 reports whether pgn is destination specific.
func IsPDU1(pgn uint32) bool {
	return isPDU1(pgn)
}

// Raw returns the logical value including the type bit.
func (id Identifier) Raw() uint32 {
	return id.raw
}

// ID returns the value sent on the wire: 29 bits for extended and 11 bits
// for standard identifiers.
func (id Identifier) ID() uint32 {
	if id.Type() == Extended {
		return id.raw & ExtendedIDMask
	}
	return id.raw & StandardIDMask
}

// Type returns the frame format.
func (id Identifier) Type() Type {
	if id.raw&TypeBitMask != 0 {
		return Extended
	}
	return Standard
}

// Priority returns the message priority. Standard identifiers report the
// highest priority.
func (id Identifier) Priority() Priority {
	if id.Type() == Standard {
		return PriorityHighest0
	}
	return Priority((id.raw >> PriorityOffset) & 0x07)
}

func (id Identifier) pduFormat() uint8 {
	return uint8(id.raw >> 16)
}

// PGN returns the parameter group number with the destination stripped
// for PDU1 messages.
func (id Identifier) PGN() uint32 {
	if id.Type() == Standard {
		return UndefinedPGN
	}
	if id.pduFormat() < PDU2Threshold {
		return (id.raw >> PGNOffset) & DestinationPGNMask
	}
	return (id.raw >> PGNOffset) & BroadcastPGNMask
}

// DestinationAddress returns the PS byte of PDU1 identifiers and the
// global address otherwise.
func (id Identifier) DestinationAddress() uint8 {
	if id.Type() == Extended && id.pduFormat() < PDU2Threshold {
		return uint8(id.raw >> PGNOffset)
	}
	return GlobalAddress
}

// SourceAddress returns the address of the sender.
func (id Identifier) SourceAddress() uint8 {
	return uint8(id.raw)
}

// IsValid reports whether the identifier can appear on an ISO 11783 bus.
// The global address is never a valid source and both data page bits set
// is reserved for other protocols.
func (id Identifier) IsValid() bool {
	if id.Type() == Standard {
		return id.raw <= StandardIDMask
	}
	if id.raw&^(TypeBitMask|ExtendedIDMask) != 0 {
		return false
	}
	if id.SourceAddress() == GlobalAddress {
		return false
	}
	pgnBits := id.raw >> PGNOffset
	if pgnBits&dataPageMask != 0 && pgnBits&extendedDataPageBit != 0 {
		return false
	}
	return true
}

// String returns string representation of the identifier
func (id Identifier) String() string {
	if id.Type() == Standard {
		return fmt.Sprintf("ID{Std 0x%03X}", id.ID())
	}
	return fmt.Sprintf("ID{0x%08X P=%d PGN=0x%05X DA=0x%02X SA=0x%02X}",
		id.ID(), id.Priority(), id.PGN(), id.DestinationAddress(), id.SourceAddress())
}
