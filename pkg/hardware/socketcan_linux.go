//go:build linux

package hardware

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/brutella/can"
)

// SocketCANDriver reads and writes raw frames on a Linux CAN interface
type SocketCANDriver struct {
	name string

	rwc     can.ReadWriteCloser
	rwcLock sync.RWMutex
	open    atomic.Bool

	stats struct {
		framesSent     atomic.Uint64
		framesReceived atomic.Uint64
		writeErrors    atomic.Uint64
		readErrors     atomic.Uint64
		connects       atomic.Uint64
		disconnects    atomic.Uint64
	}
}

// NewSocketCANDriver creates a closed driver for interface name, e.g. "can0"
func NewSocketCANDriver(name string) (*SocketCANDriver, error) {
	if name == "" {
		return nil, fmt.Errorf("interface name is required")
	}
	return &SocketCANDriver{name: name}, nil
}

// Open binds a raw CAN socket to the interface
func (d *SocketCANDriver) Open() error {
	if d.open.Load() {
		return nil
	}
	iface, err := net.InterfaceByName(d.name)
	if err != nil {
		return fmt.Errorf("socketcan %s: %w", d.name, err)
	}
	rwc, err := can.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return fmt.Errorf("socketcan %s: %w", d.name, err)
	}

	d.rwcLock.Lock()
	d.rwc = rwc
	d.rwcLock.Unlock()
	d.open.Store(true)
	d.stats.connects.Add(1)
	return nil
}

// Close releases the socket, unblocking a pending read
func (d *SocketCANDriver) Close() error {
	if !d.open.CompareAndSwap(true, false) {
		return nil
	}
	d.rwcLock.Lock()
	rwc := d.rwc
	d.rwc = nil
	d.rwcLock.Unlock()

	d.stats.disconnects.Add(1)
	if rwc != nil {
		return rwc.Close()
	}
	return nil
}

// IsValid reports whether the socket is open
func (d *SocketCANDriver) IsValid() bool {
	return d.open.Load()
}

func (d *SocketCANDriver) socket() can.ReadWriteCloser {
	d.rwcLock.RLock()
	defer d.rwcLock.RUnlock()
	return d.rwc
}

// ReadFrame blocks until the socket yields a data frame
func (d *SocketCANDriver) ReadFrame(ctx context.Context) (Frame, error) {
	for {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		rwc := d.socket()
		if rwc == nil {
			return Frame{}, ErrDriverClosed
		}

		var raw can.Frame
		if err := rwc.ReadFrame(&raw); err != nil {
			if !d.open.Load() {
				return Frame{}, ErrDriverClosed
			}
			d.stats.readErrors.Add(1)
			return Frame{}, err
		}
		if raw.ID&canRTRFlag != 0 || raw.Length > MaxDataLength {
			continue
		}

		f := Frame{Length: raw.Length, Data: raw.Data}
		if raw.ID&canEFFFlag != 0 {
			f.Extended = true
			f.Identifier = raw.ID & canEFFMask
		} else {
			f.Identifier = raw.ID & canSFFMask
		}
		d.stats.framesReceived.Add(1)
		return f, nil
	}
}

// WriteFrame writes frame to the socket
func (d *SocketCANDriver) WriteFrame(ctx context.Context, frame Frame) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rwc := d.socket()
	if rwc == nil {
		return ErrDriverClosed
	}

	raw := can.Frame{ID: frame.Identifier, Length: frame.Length, Data: frame.Data}
	if frame.Extended {
		raw.ID |= canEFFFlag
	}
	if err := rwc.WriteFrame(raw); err != nil {
		d.stats.writeErrors.Add(1)
		return err
	}
	d.stats.framesSent.Add(1)
	return nil
}

// Statistics returns driver counters
func (d *SocketCANDriver) Statistics() DriverStats {
	return DriverStats{
		FramesSent:     d.stats.framesSent.Load(),
		FramesReceived: d.stats.framesReceived.Load(),
		WriteErrors:    d.stats.writeErrors.Load(),
		ReadErrors:     d.stats.readErrors.Load(),
		Connects:       d.stats.connects.Load(),
		Disconnects:    d.stats.disconnects.Load(),
	}
}
