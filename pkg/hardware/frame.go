package hardware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Identifier limits
const (
	MaxStandardID uint32 = 0x7FF
	MaxExtendedID uint32 = 0x1FFFFFFF
	MaxDataLength        = 8
)

var (
	ErrDataTooLong       = errors.New("CAN frame data longer than 8 bytes")
	ErrInvalidIdentifier = errors.New("CAN identifier out of range")
)

var (
	green  = color.New(color.FgGreen).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	cyan   = color.New(color.FgCyan).SprintfFunc()
)

// Frame is one classic CAN frame as exchanged with a driver.
type Frame struct {
	Channel    uint8
	Identifier uint32
	Extended   bool
	Length     uint8
	Data       [MaxDataLength]byte
	Timestamp  time.Time
}

// NewFrame creates a frame carrying data.
func NewFrame(channel uint8, id uint32, extended bool, data []byte) (Frame, error) {
	if len(data) > MaxDataLength {
		return Frame{}, fmt.Errorf("%w: %d", ErrDataTooLong, len(data))
	}
	f := Frame{Channel: channel, Identifier: id, Extended: extended, Length: uint8(len(data))}
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Validate checks the identifier range and data length.
func (f Frame) Validate() error {
	if f.Length > MaxDataLength {
		return fmt.Errorf("%w: %d", ErrDataTooLong, f.Length)
	}
	limit := MaxStandardID
	if f.Extended {
		limit = MaxExtendedID
	}
	if f.Identifier > limit {
		return fmt.Errorf("%w: 0x%X", ErrInvalidIdentifier, f.Identifier)
	}
	return nil
}

// Payload returns the used part of Data.
func (f Frame) Payload() []byte {
	n := f.Length
	if n > MaxDataLength {
		n = MaxDataLength
	}
	return f.Data[:n]
}

func (f Frame) idString() string {
	if f.Extended {
		return fmt.Sprintf("%08X", f.Identifier)
	}
	return fmt.Sprintf("%03X", f.Identifier)
}

func hexBytes(b []byte) string {
	var out strings.Builder
	for i, v := range b {
		if i > 0 {
			out.WriteByte(' ')
		}
		fmt.Fprintf(&out, "%02X", v)
	}
	return out.String()
}

// String returns string representation of Frame
func (f Frame) String() string {
	return fmt.Sprintf("ch%d %s [%d] %s", f.Channel, f.idString(), f.Length, hexBytes(f.Payload()))
}

// ColorString renders the frame for terminals.
func (f Frame) ColorString() string {
	var out strings.Builder
	out.WriteString(cyan("ch%d", f.Channel) + " || ")
	out.WriteString(green("%s", f.idString()) + " || ")
	out.WriteString(fmt.Sprintf("%d || ", f.Length))
	out.WriteString(yellow("%s", hexBytes(f.Payload())))
	return out.String()
}
