package hardware

import (
	"context"
	"sync"
	"sync/atomic"
)

const loopbackQueueSize = 512

// LoopbackBus is an in-memory CAN bus. Every driver opened on it receives
// the frames written by the others, never its own.
type LoopbackBus struct {
	mu      sync.RWMutex
	drivers map[*LoopbackDriver]struct{}
}

// NewLoopbackBus creates an empty bus
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{drivers: make(map[*LoopbackDriver]struct{})}
}

// NewDriver returns a closed driver attached to the bus.
func (b *LoopbackBus) NewDriver() *LoopbackDriver {
	return &LoopbackDriver{bus: b}
}

func (b *LoopbackBus) peers(self *LoopbackDriver) []*LoopbackDriver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*LoopbackDriver, 0, len(b.drivers))
	for d := range b.drivers {
		if d != self {
			out = append(out, d)
		}
	}
	return out
}

// LoopbackDriver is one node on a LoopbackBus
type LoopbackDriver struct {
	bus  *LoopbackBus
	mu   sync.Mutex
	rx   chan Frame
	done chan struct{}
	open bool

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// Open attaches the driver to its bus
func (d *LoopbackDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	d.rx = make(chan Frame, loopbackQueueSize)
	d.done = make(chan struct{})
	d.open = true

	d.bus.mu.Lock()
	d.bus.drivers[d] = struct{}{}
	d.bus.mu.Unlock()
	return nil
}

// Close detaches the driver and unblocks readers
func (d *LoopbackDriver) Close() error {
	d.bus.mu.Lock()
	delete(d.bus.drivers, d)
	d.bus.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		d.open = false
		close(d.done)
	}
	return nil
}

// IsValid reports whether the driver is attached
func (d *LoopbackDriver) IsValid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *LoopbackDriver) channels() (chan Frame, chan struct{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rx, d.done, d.open
}

// ReadFrame waits for a frame from another node
func (d *LoopbackDriver) ReadFrame(ctx context.Context) (Frame, error) {
	rx, done, open := d.channels()
	if !open {
		return Frame{}, ErrDriverClosed
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-done:
		return Frame{}, ErrDriverClosed
	case f := <-rx:
		d.received.Add(1)
		return f, nil
	}
}

// WriteFrame delivers frame to every other open node. A node whose queue
// is full misses the frame, like a controller with a full receive buffer.
func (d *LoopbackDriver) WriteFrame(ctx context.Context, frame Frame) error {
	if !d.IsValid() {
		return ErrDriverClosed
	}
	for _, peer := range d.bus.peers(d) {
		rx, done, open := peer.channels()
		if !open {
			continue
		}
		select {
		case rx <- frame:
		case <-done:
		default:
			peer.dropped.Add(1)
		}
	}
	d.sent.Add(1)
	return nil
}

// Statistics returns driver counters
func (d *LoopbackDriver) Statistics() DriverStats {
	return DriverStats{
		FramesSent:     d.sent.Load(),
		FramesReceived: d.received.Load(),
		ReadErrors:     d.dropped.Load(),
	}
}
