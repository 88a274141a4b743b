// Package hardware connects the network stack to CAN buses. A Driver is
// one bus backend; an Interface runs the read and write loops of several.
package hardware

import (
	"context"
	"errors"
)

var (
	ErrDriverClosed = errors.New("driver is closed")
	ErrNotConnected = errors.New("driver has no connection")
)

// ConnectionStateListener receives notifications about connection state changes
type ConnectionStateListener interface {
	// OnConnectionEstablished is called when a new connection is established
	OnConnectionEstablished()

	// OnConnectionLost is called when a connection is lost
	OnConnectionLost()
}

// Driver is a pluggable CAN backend: SocketCAN, a network gateway or an
// in-memory bus.
type Driver interface {
	// Open acquires the underlying device or connection
	Open() error

	// Close releases the device and unblocks pending reads
	Close() error

	// IsValid reports whether the driver is open and usable
	IsValid() bool

	// ReadFrame blocks until a frame arrives, ctx is done or the driver closes
	ReadFrame(ctx context.Context) (Frame, error)

	// WriteFrame queues one frame on the bus. Safe for concurrent use with ReadFrame
	WriteFrame(ctx context.Context, frame Frame) error

	// Statistics returns driver-level counters, zero values when not tracked
	Statistics() DriverStats
}

// StateNotifier is implemented by drivers with connection state, such as
// network gateways.
type StateNotifier interface {
	SetConnectionStateListener(listener ConnectionStateListener)
}

// DriverStats provides driver-level statistics
type DriverStats struct {
	FramesSent     uint64
	FramesReceived uint64
	WriteErrors    uint64
	ReadErrors     uint64
	Connects       uint64 // For connection-oriented drivers
	Disconnects    uint64
}

// State represents the state of an Interface
type State int

const (
	StateStopped State = iota
	StateRunning
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
