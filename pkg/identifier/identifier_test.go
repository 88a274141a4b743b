package identifier

import (
	"testing"
	"testing/quick"
)

func TestEncodeKnownValues(t *testing.T) {
	tests := []struct {
		name        string
		pgn         uint32
		priority    Priority
		destination uint8
		source      uint8
		want        uint32
	}{
		{"address claim to global", 0xEE00, PriorityDefault6, GlobalAddress, 0x1C, 0x18EEFF1C},
		{"proprietary A to 0x26", 0xEF00, PriorityDefault6, 0x26, 0x1C, 0x18EF261C},
		{"TP.CM highest priority", 0xEC00, PriorityHighest0, 0x80, 0x81, 0x00EC8081},
		{"PDU2 ignores destination", 0xFEF1, Priority3, 0x12, 0x00, 0x0CFEF100},
		{"extended data page", 0x2FE00, PriorityLowest7, GlobalAddress, 0x05, 0x1EFE0005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(Extended, tt.pgn, tt.priority, tt.destination, tt.source)
			if got&ExtendedIDMask != tt.want {
				t.Errorf("Encode() = 0x%08X, want 0x%08X", got&ExtendedIDMask, tt.want)
			}
			if got&TypeBitMask == 0 {
				t.Error("Encode() lost the extended type bit")
			}
		})
	}
}

func TestDecodeFields(t *testing.T) {
	id := FromFrame(0x18EF261C, true)

	if id.Type() != Extended {
		t.Errorf("Type = %v, want %v", id.Type(), Extended)
	}
	if id.Priority() != PriorityDefault6 {
		t.Errorf("Priority = %v, want %v", id.Priority(), PriorityDefault6)
	}
	if id.PGN() != 0xEF00 {
		t.Errorf("PGN = 0x%X, want 0xEF00", id.PGN())
	}
	if id.DestinationAddress() != 0x26 {
		t.Errorf("DestinationAddress = 0x%X, want 0x26", id.DestinationAddress())
	}
	if id.SourceAddress() != 0x1C {
		t.Errorf("SourceAddress = 0x%X, want 0x1C", id.SourceAddress())
	}
	if id.ID() != 0x18EF261C {
		t.Errorf("ID = 0x%X, want 0x18EF261C", id.ID())
	}

	broadcast := FromFrame(0x0CFEF100, true)
	if broadcast.PGN() != 0xFEF1 {
		t.Errorf("PGN = 0x%X, want 0xFEF1", broadcast.PGN())
	}
	if broadcast.DestinationAddress() != GlobalAddress {
		t.Errorf("DestinationAddress = 0x%X, want global", broadcast.DestinationAddress())
	}
}

func TestStandardIdentifier(t *testing.T) {
	id := FromFrame(0x123, false)

	if id.Type() != Standard {
		t.Errorf("Type = %v, want %v", id.Type(), Standard)
	}
	if id.PGN() != UndefinedPGN {
		t.Errorf("PGN = 0x%X, want undefined", id.PGN())
	}
	if id.Priority() != PriorityHighest0 {
		t.Errorf("Priority = %v, want %v", id.Priority(), PriorityHighest0)
	}
	if id.DestinationAddress() != GlobalAddress {
		t.Errorf("DestinationAddress = 0x%X, want global", id.DestinationAddress())
	}
	if !id.IsValid() {
		t.Error("standard identifier 0x123 should be valid")
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		id   Identifier
		want bool
	}{
		{"normal claim", New(Extended, 0xEE00, PriorityDefault6, GlobalAddress, 0x80), true},
		{"global source", New(Extended, 0xEE00, PriorityDefault6, GlobalAddress, GlobalAddress), false},
		{"null source", New(Extended, 0xEE00, PriorityDefault6, GlobalAddress, NullAddress), true},
		{"both data pages", New(Extended, 0x3EE00, PriorityDefault6, GlobalAddress, 0x80), false},
		{"bits above 29", Decode(TypeBitMask | 0x20000000 | 0x80), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundTripProperty(t *testing.T) {
	roundTrip := func(pgnSeed uint32, prio uint8, destination, source uint8) bool {
		pgn := pgnSeed & BroadcastPGNMask
		if IsPDU1(pgn) {
			pgn &= DestinationPGNMask
		} else {
			destination = GlobalAddress
		}
		priority := Priority(prio & 0x07)

		id := Decode(Encode(Extended, pgn, priority, destination, source))
		return id.Type() == Extended &&
			id.PGN() == pgn &&
			id.Priority() == priority &&
			id.DestinationAddress() == destination &&
			id.SourceAddress() == source
	}

	if err := quick.Check(roundTrip, nil); err != nil {
		t.Error(err)
	}
}
