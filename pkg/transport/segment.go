package transport

import "fmt"

// controlFrame is a decoded TP.CM or ETP.CM frame
type controlFrame struct {
	control     uint8
	totalBytes  uint32 // RTS, BAM, EoMA
	packets     uint32 // RTS, BAM, CTS, DPO
	maxPerCTS   uint8  // TP RTS
	nextPacket  uint32 // CTS
	offset      uint32 // DPO
	abortReason AbortReason
	pgn         uint32
}

func putPGN(b []byte, pgn uint32) {
	b[5] = byte(pgn)
	b[6] = byte(pgn >> 8)
	b[7] = byte(pgn >> 16)
}

func getPGN(b []byte) uint32 {
	return uint32(b[5]) | uint32(b[6])<<8 | uint32(b[7])<<16
}

func tpRequestToSendFrame(totalBytes uint16, packets uint8, pgn uint32) []byte {
	b := []byte{tpRequestToSend, byte(totalBytes), byte(totalBytes >> 8), packets, noPacketLimit, 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func tpBroadcastFrame(totalBytes uint16, packets uint8, pgn uint32) []byte {
	b := []byte{tpBroadcastAnnounce, byte(totalBytes), byte(totalBytes >> 8), packets, reservedByte, 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func tpClearToSendFrame(packets, next uint8, pgn uint32) []byte {
	b := []byte{tpClearToSend, packets, next, reservedByte, reservedByte, 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func tpEndOfMessageFrame(totalBytes uint16, packets uint8, pgn uint32) []byte {
	b := []byte{tpEndOfMessageAck, byte(totalBytes), byte(totalBytes >> 8), packets, reservedByte, 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func etpRequestToSendFrame(totalBytes uint32, pgn uint32) []byte {
	b := []byte{etpRequestToSend, byte(totalBytes), byte(totalBytes >> 8), byte(totalBytes >> 16), byte(totalBytes >> 24), 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func etpClearToSendFrame(packets uint8, next uint32, pgn uint32) []byte {
	b := []byte{etpClearToSend, packets, byte(next), byte(next >> 8), byte(next >> 16), 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func etpDataPacketOffsetFrame(packets uint8, offset uint32, pgn uint32) []byte {
	b := []byte{etpDataPacketOffset, packets, byte(offset), byte(offset >> 8), byte(offset >> 16), 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func etpEndOfMessageFrame(totalBytes uint32, pgn uint32) []byte {
	b := []byte{etpEndOfMessageAck, byte(totalBytes), byte(totalBytes >> 8), byte(totalBytes >> 16), byte(totalBytes >> 24), 0, 0, 0}
	putPGN(b, pgn)
	return b
}

func abortFrame(reason AbortReason, pgn uint32) []byte {
	b := []byte{connectionAbort, byte(reason), reservedByte, reservedByte, reservedByte, 0, 0, 0}
	putPGN(b, pgn)
	return b
}

// parseControl decodes a connection management frame of either protocol.
func parseControl(extended bool, b []byte) (controlFrame, error) {
	if len(b) != FrameLength {
		return controlFrame{}, fmt.Errorf("%w: control frame length %d", ErrMalformedFrame, len(b))
	}
	f := controlFrame{control: b[0], pgn: getPGN(b)}
	switch {
	case b[0] == connectionAbort:
		f.abortReason = AbortReason(b[1])
	case !extended && (b[0] == tpRequestToSend || b[0] == tpBroadcastAnnounce || b[0] == tpEndOfMessageAck):
		f.totalBytes = uint32(b[1]) | uint32(b[2])<<8
		f.packets = uint32(b[3])
		f.maxPerCTS = b[4]
	case !extended && b[0] == tpClearToSend:
		f.packets = uint32(b[1])
		f.nextPacket = uint32(b[2])
	case extended && (b[0] == etpRequestToSend || b[0] == etpEndOfMessageAck):
		f.totalBytes = uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16 | uint32(b[4])<<24
		f.packets = PacketCount(int(f.totalBytes))
	case extended && b[0] == etpClearToSend:
		f.packets = uint32(b[1])
		f.nextPacket = uint32(b[2]) | uint32(b[3])<<8 | uint32(b[4])<<16
	case extended && b[0] == etpDataPacketOffset:
		f.packets = uint32(b[1])
		f.offset = uint32(b[2]) | uint32(b[3])<<8 | uint32(b[4])<<16
	default:
		return controlFrame{}, fmt.Errorf("%w: control byte 0x%02X", ErrMalformedFrame, b[0])
	}
	return f, nil
}

// dataFrame builds the data frame carrying packet (1-based) of data.
// seq is the sequence number written to the wire.
func dataFrame(data []byte, packet uint32, seq uint8) []byte {
	b := []byte{seq, reservedByte, reservedByte, reservedByte, reservedByte, reservedByte, reservedByte, reservedByte}
	start := int(packet-1) * BytesPerPacket
	end := start + BytesPerPacket
	if end > len(data) {
		end = len(data)
	}
	copy(b[1:], data[start:end])
	return b
}
