package hardware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
)

// Stream gateways carry frames as fixed size records:
// sync, flags, identifier (big endian), length, 8 data bytes.
const (
	recordSync     byte = 0xA5
	recordExtended byte = 0x01
	recordSize          = 15
)

var ErrBadRecord = errors.New("bad frame record")

func encodeRecord(f Frame) []byte {
	b := make([]byte, recordSize)
	b[0] = recordSync
	if f.Extended {
		b[1] = recordExtended
	}
	binary.BigEndian.PutUint32(b[2:6], f.Identifier)
	b[6] = f.Length
	copy(b[7:], f.Data[:])
	return b
}

func decodeRecord(b []byte) (Frame, error) {
	if len(b) != recordSize || b[0] != recordSync {
		return Frame{}, ErrBadRecord
	}
	f := Frame{
		Extended:   b[1]&recordExtended != 0,
		Identifier: binary.BigEndian.Uint32(b[2:6]),
		Length:     b[6],
	}
	if f.Length > MaxDataLength {
		return Frame{}, fmt.Errorf("%w: length %d", ErrBadRecord, f.Length)
	}
	copy(f.Data[:], b[7:])
	return f, nil
}

// stream is a connected byte stream: a TCP connection or a QUIC stream
type stream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// streamDriver holds what TCP and QUIC gateways share: the current
// stream, reconnection, statistics and state notification.
type streamDriver struct {
	current    stream
	streamLock sync.RWMutex

	writeTimeout   time.Duration
	reconnectDelay time.Duration
	dialAttempts   uint

	stateListener     ConnectionStateListener
	stateListenerLock sync.RWMutex

	stats struct {
		framesSent     atomic.Uint64
		framesReceived atomic.Uint64
		writeErrors    atomic.Uint64
		readErrors     atomic.Uint64
		connects       atomic.Uint64
		disconnects    atomic.Uint64
	}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	open   atomic.Bool
}

func (s *streamDriver) start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.open.Store(true)
}

// stop cancels background work, drops the stream and waits for goroutines.
func (s *streamDriver) stop() {
	if !s.open.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.detach()
	s.wg.Wait()
}

// attach makes st the active stream, replacing any previous one.
func (s *streamDriver) attach(st stream) {
	s.streamLock.Lock()
	old := s.current
	s.current = st
	s.streamLock.Unlock()

	if old != nil {
		old.Close()
		s.stats.disconnects.Add(1)
		s.notifyConnectionLost()
	}
	s.stats.connects.Add(1)
	s.notifyConnectionEstablished()
}

// detach closes the active stream after an error or on shutdown.
func (s *streamDriver) detach() {
	s.streamLock.Lock()
	old := s.current
	s.current = nil
	s.streamLock.Unlock()

	if old != nil {
		old.Close()
		s.stats.disconnects.Add(1)
		s.notifyConnectionLost()
	}
}

func (s *streamDriver) active() stream {
	s.streamLock.RLock()
	defer s.streamLock.RUnlock()
	return s.current
}

// dial runs connect with retries until it yields a stream.
func (s *streamDriver) dial(connect func(ctx context.Context) (stream, error)) error {
	var st stream
	err := retry.Do(func() error {
		var err error
		st, err = connect(s.ctx)
		return err
	},
		retry.Context(s.ctx),
		retry.Attempts(s.dialAttempts),
		retry.Delay(s.reconnectDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}
	s.attach(st)
	return nil
}

// superviseClient redials whenever the stream was lost.
func (s *streamDriver) superviseClient(connect func(ctx context.Context) (stream, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if s.active() == nil {
					_ = s.dial(connect)
				}
			}
		}
	}()
}

// IsValid reports whether the driver is open
func (s *streamDriver) IsValid() bool {
	return s.open.Load()
}

// ReadFrame waits for a stream and reads the next record from it
func (s *streamDriver) ReadFrame(ctx context.Context) (Frame, error) {
	buf := make([]byte, recordSize)
	for {
		if !s.open.Load() {
			return Frame{}, ErrDriverClosed
		}
		st := s.active()
		if st == nil {
			select {
			case <-ctx.Done():
				return Frame{}, ctx.Err()
			case <-s.ctx.Done():
				return Frame{}, ErrDriverClosed
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		if _, err := io.ReadFull(st, buf); err != nil {
			if !s.open.Load() {
				return Frame{}, ErrDriverClosed
			}
			s.stats.readErrors.Add(1)
			s.detach()
			continue
		}
		f, err := decodeRecord(buf)
		if err != nil {
			s.stats.readErrors.Add(1)
			// A desynchronised stream cannot recover its record boundaries
			s.detach()
			continue
		}
		s.stats.framesReceived.Add(1)
		return f, nil
	}
}

// WriteFrame writes one record to the active stream
func (s *streamDriver) WriteFrame(ctx context.Context, frame Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !s.open.Load() {
		return ErrDriverClosed
	}
	st := s.active()
	if st == nil {
		s.stats.writeErrors.Add(1)
		return ErrNotConnected
	}
	if s.writeTimeout > 0 {
		st.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := st.Write(encodeRecord(frame)); err != nil {
		s.stats.writeErrors.Add(1)
		s.detach()
		return err
	}
	s.stats.framesSent.Add(1)
	return nil
}

// Statistics returns driver counters
func (s *streamDriver) Statistics() DriverStats {
	return DriverStats{
		FramesSent:     s.stats.framesSent.Load(),
		FramesReceived: s.stats.framesReceived.Load(),
		WriteErrors:    s.stats.writeErrors.Load(),
		ReadErrors:     s.stats.readErrors.Load(),
		Connects:       s.stats.connects.Load(),
		Disconnects:    s.stats.disconnects.Load(),
	}
}

// IsConnected reports whether a stream is attached
func (s *streamDriver) IsConnected() bool {
	return s.active() != nil
}

// SetConnectionStateListener sets a listener for connection state changes
func (s *streamDriver) SetConnectionStateListener(listener ConnectionStateListener) {
	s.stateListenerLock.Lock()
	defer s.stateListenerLock.Unlock()
	s.stateListener = listener
}

func (s *streamDriver) notifyConnectionEstablished() {
	s.stateListenerLock.RLock()
	listener := s.stateListener
	s.stateListenerLock.RUnlock()

	if listener != nil {
		listener.OnConnectionEstablished()
	}
}

func (s *streamDriver) notifyConnectionLost() {
	s.stateListenerLock.RLock()
	listener := s.stateListener
	s.stateListenerLock.RUnlock()

	if listener != nil {
		listener.OnConnectionLost()
	}
}
