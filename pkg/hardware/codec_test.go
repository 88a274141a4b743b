package hardware

import (
	"bytes"
	"errors"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	in, _ := NewFrame(0, 0x18EF8180, true, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b := encodeRecord(in)
	if len(b) != recordSize {
		t.Fatalf("len = %d, want %d", len(b), recordSize)
	}
	want := []byte{0xA5, 0x01, 0x18, 0xEF, 0x81, 0x80, 0x08, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(b, want) {
		t.Fatalf("encodeRecord() = % X, want % X", b, want)
	}

	out, err := decodeRecord(b)
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if out.Identifier != in.Identifier || !out.Extended || out.Length != 8 || out.Data != in.Data {
		t.Errorf("decodeRecord() = %v, want %v", out, in)
	}
}

func TestDecodeRecordRejects(t *testing.T) {
	good := encodeRecord(Frame{Identifier: 0x100, Length: 1})

	badSync := append([]byte(nil), good...)
	badSync[0] = 0x00
	badLength := append([]byte(nil), good...)
	badLength[6] = 9

	for name, b := range map[string][]byte{
		"short":  good[:10],
		"sync":   badSync,
		"length": badLength,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeRecord(b); !errors.Is(err, ErrBadRecord) {
				t.Errorf("decodeRecord() error = %v, want %v", err, ErrBadRecord)
			}
		})
	}
}

func TestCannelloniEncode(t *testing.T) {
	ext, _ := NewFrame(0, 0x18EEFF80, true, []byte{0xAA, 0xBB})
	std, _ := NewFrame(0, 0x123, false, []byte{0x01})

	got := encodeCannelloni(7, []Frame{ext, std})
	want := []byte{
		0x01, 0x00, 0x07, 0x00, 0x02,
		0x98, 0xEE, 0xFF, 0x80, 0x02, 0xAA, 0xBB,
		0x00, 0x00, 0x01, 0x23, 0x01, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeCannelloni() = % X, want % X", got, want)
	}
}

func TestCannelloniDecode(t *testing.T) {
	buf := []byte{
		0x01, 0x00, 0x2A, 0x00, 0x04,
		// extended frame
		0x98, 0xEE, 0xFF, 0x80, 0x02, 0xAA, 0xBB,
		// CAN FD frame, skipped
		0x00, 0x00, 0x01, 0x00, 0x82, 0x01, 0x11, 0x22,
		// remote frame, skipped
		0x40, 0x00, 0x01, 0x00, 0x00,
		// standard frame
		0x00, 0x00, 0x07, 0xFF, 0x01, 0x33,
	}

	seq, frames, skipped, err := decodeCannelloni(buf)
	if err != nil {
		t.Fatalf("decodeCannelloni() error = %v", err)
	}
	if seq != 0x2A {
		t.Errorf("seq = %d, want %d", seq, 0x2A)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if frames[0].Identifier != 0x18EEFF80 || !frames[0].Extended || !bytes.Equal(frames[0].Payload(), []byte{0xAA, 0xBB}) {
		t.Errorf("frames[0] = %v", frames[0])
	}
	if frames[1].Identifier != 0x7FF || frames[1].Extended || !bytes.Equal(frames[1].Payload(), []byte{0x33}) {
		t.Errorf("frames[1] = %v", frames[1])
	}
}

func TestCannelloniDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"short header", []byte{0x01, 0x00}},
		{"bad version", []byte{0x02, 0x00, 0x00, 0x00, 0x00}},
		{"bad opcode", []byte{0x01, 0x01, 0x00, 0x00, 0x00}},
		{"missing message", []byte{0x01, 0x00, 0x00, 0x00, 0x01}},
		{"truncated data", []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x00, 0x04, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := decodeCannelloni(tt.buf); !errors.Is(err, ErrCannelloniDecode) {
				t.Errorf("decodeCannelloni() error = %v, want %v", err, ErrCannelloniDecode)
			}
		})
	}
}
