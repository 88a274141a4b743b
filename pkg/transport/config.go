package transport

import (
	"fmt"
	"time"
)

// Config holds configuration for the transport session engine
type Config struct {
	// T1 bounds the gap between data frames while receiving. Default: 750ms
	T1 time.Duration

	// T2 bounds the wait for data after sending clear to send. Default: 1250ms
	T2 time.Duration

	// T3 bounds the wait for clear to send or end of message ack. Default: 1250ms
	T3 time.Duration

	// T4 bounds a hold requested by a clear to send for zero packets. Default: 1050ms
	T4 time.Duration

	// Tr bounds how long a receiver may owe its sender a clear to send. Default: 200ms
	Tr time.Duration

	// Th is the repeat interval of hold frames while a receive is held, below T4. Default: 500ms
	Th time.Duration

	// BAMInterFrameDelay spaces broadcast data frames. ISO 11783-3 allows 10 to 200ms,
	// receivers commonly need 50ms
	BAMInterFrameDelay time.Duration

	// PacketsPerCTS is the window size granted to senders, 1 to 255. Default: 16
	PacketsPerCTS uint8

	// ETPMaxPacketsPerDPO caps the packets sent after one ETP data packet
	// offset, even when the receiver grants more. Default: 255
	ETPMaxPacketsPerDPO uint8

	// MaxReceiveLength rejects larger announced messages with an abort
	MaxReceiveLength int

	// MaxSessions limits concurrent sessions per engine, 0 is unlimited. Default: 32
	MaxSessions int
}

// DefaultConfig returns default transport configuration
func DefaultConfig() Config {
	return Config{
		T1:                  750 * time.Millisecond,
		T2:                  1250 * time.Millisecond,
		T3:                  1250 * time.Millisecond,
		T4:                  1050 * time.Millisecond,
		Tr:                  200 * time.Millisecond,
		Th:                  500 * time.Millisecond,
		BAMInterFrameDelay:  50 * time.Millisecond,
		PacketsPerCTS:       16,
		ETPMaxPacketsPerDPO: 255,
		MaxReceiveLength:    MaxETPLength,
		MaxSessions:         32,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	for _, d := range []struct {
		name  string
		value time.Duration
	}{{"T1", c.T1}, {"T2", c.T2}, {"T3", c.T3}, {"T4", c.T4}, {"Tr", c.Tr}, {"Th", c.Th}} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}
	if c.BAMInterFrameDelay < 10*time.Millisecond || c.BAMInterFrameDelay > 200*time.Millisecond {
		return fmt.Errorf("BAM inter-frame delay must be within 10ms..200ms, got %v", c.BAMInterFrameDelay)
	}
	if c.Th >= c.T4 {
		return fmt.Errorf("Th %v must be below T4 %v", c.Th, c.T4)
	}
	if c.PacketsPerCTS == 0 {
		return fmt.Errorf("packets per CTS must be at least 1")
	}
	if c.ETPMaxPacketsPerDPO == 0 {
		return fmt.Errorf("ETP packets per DPO must be at least 1")
	}
	if c.MaxReceiveLength < MinMultiPacketLength || c.MaxReceiveLength > MaxETPLength {
		return fmt.Errorf("max receive length %d outside %d..%d", c.MaxReceiveLength, MinMultiPacketLength, MaxETPLength)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions must not be negative")
	}
	return nil
}
