package hardware

import (
	"context"
	"sync"
)

// MockDriver records written frames and replays injected ones.
type MockDriver struct {
	mu       sync.Mutex
	open     bool
	rx       chan Frame
	done     chan struct{}
	written  []Frame
	writeErr error
	openErr  error
	stats    DriverStats
}

// NewMockDriver creates a closed mock driver
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

// Open marks the driver usable. It fails with the error set by SetOpenError.
func (m *MockDriver) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	if !m.open {
		m.rx = make(chan Frame, loopbackQueueSize)
		m.done = make(chan struct{})
		m.open = true
	}
	return nil
}

// Close marks the driver closed and unblocks ReadFrame
func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		m.open = false
		close(m.done)
	}
	return nil
}

// IsValid reports whether the driver is open
func (m *MockDriver) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ReadFrame returns the next injected frame
func (m *MockDriver) ReadFrame(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	rx, done, open := m.rx, m.done, m.open
	m.mu.Unlock()
	if !open {
		return Frame{}, ErrDriverClosed
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-done:
		return Frame{}, ErrDriverClosed
	case f := <-rx:
		m.mu.Lock()
		m.stats.FramesReceived++
		m.mu.Unlock()
		return f, nil
	}
}

// WriteFrame records frame or fails with the error set by SetWriteError
func (m *MockDriver) WriteFrame(ctx context.Context, frame Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrDriverClosed
	}
	if m.writeErr != nil {
		m.stats.WriteErrors++
		return m.writeErr
	}
	m.written = append(m.written, frame)
	m.stats.FramesSent++
	return nil
}

// Statistics returns driver counters
func (m *MockDriver) Statistics() DriverStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Inject queues a frame for ReadFrame. It fails when the driver is closed.
func (m *MockDriver) Inject(frame Frame) error {
	m.mu.Lock()
	rx, open := m.rx, m.open
	m.mu.Unlock()
	if !open {
		return ErrDriverClosed
	}
	rx <- frame
	return nil
}

// Written returns a copy of every frame written so far
func (m *MockDriver) Written() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.written...)
}

// SetWriteError makes WriteFrame fail with err, nil restores it
func (m *MockDriver) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetOpenError makes Open fail with err
func (m *MockDriver) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}
