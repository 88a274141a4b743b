package transport

// initialCapacity bounds the allocation made when a message is announced.
// The buffer grows as data arrives.
const initialCapacity = 64 * 1024

// reassembler places data frame payloads into the announced message buffer
type reassembler struct {
	buffer   []byte
	total    int
	received int
}

func newReassembler(totalBytes int) *reassembler {
	return &reassembler{
		buffer: make([]byte, 0, min(totalBytes, initialCapacity)),
		total:  totalBytes,
	}
}

// place copies the payload of packet (1-based) into the buffer. Padding past
// the announced length is dropped.
func (r *reassembler) place(packet uint32, payload []byte) {
	start := int(packet-1) * BytesPerPacket
	if start >= r.total {
		return
	}
	end := min(start+len(payload), r.total)
	if end > len(r.buffer) {
		r.buffer = append(r.buffer, make([]byte, end-len(r.buffer))...)
	}
	copy(r.buffer[start:end], payload)
	if end > r.received {
		r.received = end
	}
}

// complete reports whether every byte has arrived
func (r *reassembler) complete() bool {
	return r.received >= r.total
}

func (r *reassembler) bytes() []byte {
	return r.buffer
}

// checkSequence maps a received sequence number to an abort reason.
func checkSequence(got, want uint8) AbortReason {
	switch {
	case got == want:
		return AbortReasonNone
	case got < want:
		return AbortDuplicateSequenceNumber
	default:
		return AbortBadSequenceNumber
	}
}
