package hardware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Cannelloni datagram layout: version, opcode, sequence, count (big
// endian), then per message canID (big endian, Linux flag bits), length,
// an optional CAN FD flags byte and the data.
const (
	cannelloniVersion    byte = 1
	cannelloniOpData     byte = 0
	cannelloniHeaderSize      = 5
	cannelloniFDLength   byte = 0x80

	canEFFFlag uint32 = 0x80000000
	canRTRFlag uint32 = 0x40000000
	canEFFMask uint32 = 0x1FFFFFFF
	canSFFMask uint32 = 0x000007FF

	cannelloniMaxDatagram = 1500
)

var ErrCannelloniDecode = errors.New("cannelloni decode error")

func encodeCannelloni(seq uint8, frames []Frame) []byte {
	buf := make([]byte, cannelloniHeaderSize, cannelloniHeaderSize+len(frames)*13)
	buf[0] = cannelloniVersion
	buf[1] = cannelloniOpData
	buf[2] = seq
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(frames)))

	for _, f := range frames {
		id := f.Identifier
		if f.Extended {
			id = (id & canEFFMask) | canEFFFlag
		}
		buf = binary.BigEndian.AppendUint32(buf, id)
		buf = append(buf, f.Length)
		buf = append(buf, f.Data[:f.Length]...)
	}
	return buf
}

// decodeCannelloni returns the classic CAN frames of one datagram. CAN FD
// and remote frames are skipped and counted in skipped.
func decodeCannelloni(buf []byte) (seq uint8, frames []Frame, skipped int, err error) {
	if len(buf) < cannelloniHeaderSize {
		return 0, nil, 0, fmt.Errorf("%w: short header", ErrCannelloniDecode)
	}
	if buf[0] != cannelloniVersion || buf[1] != cannelloniOpData {
		return 0, nil, 0, fmt.Errorf("%w: version %d opcode %d", ErrCannelloniDecode, buf[0], buf[1])
	}
	seq = buf[2]
	count := int(binary.BigEndian.Uint16(buf[3:5]))

	pos := cannelloniHeaderSize
	for i := 0; i < count; i++ {
		if len(buf)-pos < 5 {
			return seq, nil, 0, fmt.Errorf("%w: message %d truncated", ErrCannelloniDecode, i)
		}
		id := binary.BigEndian.Uint32(buf[pos : pos+4])
		length := buf[pos+4]
		pos += 5

		fd := length&cannelloniFDLength != 0
		if fd {
			length &^= cannelloniFDLength
			pos++ // flags
		}
		if len(buf)-pos < int(length) {
			return seq, nil, 0, fmt.Errorf("%w: message %d data truncated", ErrCannelloniDecode, i)
		}
		data := buf[pos : pos+int(length)]
		pos += int(length)

		if fd || length > MaxDataLength || id&canRTRFlag != 0 {
			skipped++
			continue
		}
		f := Frame{Length: length}
		if id&canEFFFlag != 0 {
			f.Extended = true
			f.Identifier = id & canEFFMask
		} else {
			f.Identifier = id & canSFFMask
		}
		copy(f.Data[:], data)
		frames = append(frames, f)
	}
	return seq, frames, skipped, nil
}

// CannelloniDriver exchanges frames with a cannelloni peer over UDP. One
// datagram is sent per frame.
type CannelloniDriver struct {
	conn     *net.UDPConn
	connLock sync.RWMutex

	localAddress  string
	remoteAddress string
	remote        *net.UDPAddr
	readTimeout   time.Duration

	seq     atomic.Uint32
	pending []Frame // decoded but not yet returned, read goroutine only

	stats struct {
		framesSent     atomic.Uint64
		framesReceived atomic.Uint64
		writeErrors    atomic.Uint64
		readErrors     atomic.Uint64
		connects       atomic.Uint64
		disconnects    atomic.Uint64
	}

	closed atomic.Bool
	open   atomic.Bool
}

// CannelloniDriverConfig configures a cannelloni driver
type CannelloniDriverConfig struct {
	LocalAddress  string        // bind address, "host:port"
	RemoteAddress string        // peer address, "host:port"
	ReadTimeout   time.Duration // poll interval for close checks (0 = 1s)
}

// NewCannelloniDriver creates a closed cannelloni driver
func NewCannelloniDriver(config CannelloniDriverConfig) (*CannelloniDriver, error) {
	if config.RemoteAddress == "" {
		return nil, fmt.Errorf("remote address is required")
	}
	if config.LocalAddress == "" {
		config.LocalAddress = ":0"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = time.Second
	}
	return &CannelloniDriver{
		localAddress:  config.LocalAddress,
		remoteAddress: config.RemoteAddress,
		readTimeout:   config.ReadTimeout,
	}, nil
}

// Open binds the local socket
func (d *CannelloniDriver) Open() error {
	if d.open.Load() {
		return nil
	}
	remote, err := net.ResolveUDPAddr("udp", d.remoteAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", d.remoteAddress, err)
	}
	local, err := net.ResolveUDPAddr("udp", d.localAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", d.localAddress, err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.localAddress, err)
	}

	d.connLock.Lock()
	d.conn = conn
	d.remote = remote
	d.connLock.Unlock()

	d.pending = nil
	d.closed.Store(false)
	d.open.Store(true)
	d.stats.connects.Add(1)
	return nil
}

// Close releases the socket
func (d *CannelloniDriver) Close() error {
	if !d.open.CompareAndSwap(true, false) {
		return nil
	}
	d.closed.Store(true)

	d.connLock.Lock()
	conn := d.conn
	d.conn = nil
	d.connLock.Unlock()

	d.stats.disconnects.Add(1)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsValid reports whether the socket is bound
func (d *CannelloniDriver) IsValid() bool {
	return d.open.Load()
}

// ReadFrame returns the next frame, reading a new datagram when needed
func (d *CannelloniDriver) ReadFrame(ctx context.Context) (Frame, error) {
	buf := make([]byte, cannelloniMaxDatagram)
	for len(d.pending) == 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		default:
		}

		d.connLock.RLock()
		conn := d.conn
		d.connLock.RUnlock()
		if conn == nil {
			return Frame{}, ErrDriverClosed
		}

		conn.SetReadDeadline(time.Now().Add(d.readTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if d.closed.Load() {
				return Frame{}, ErrDriverClosed
			}
			d.stats.readErrors.Add(1)
			return Frame{}, err
		}

		_, frames, skipped, err := decodeCannelloni(buf[:n])
		if err != nil {
			d.stats.readErrors.Add(1)
			continue
		}
		d.stats.readErrors.Add(uint64(skipped))
		d.pending = frames
	}

	f := d.pending[0]
	d.pending = d.pending[1:]
	d.stats.framesReceived.Add(1)
	return f, nil
}

// WriteFrame sends frame as a single message datagram
func (d *CannelloniDriver) WriteFrame(ctx context.Context, frame Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	d.connLock.RLock()
	conn, remote := d.conn, d.remote
	d.connLock.RUnlock()
	if conn == nil {
		return ErrDriverClosed
	}

	seq := uint8(d.seq.Add(1) - 1)
	if _, err := conn.WriteToUDP(encodeCannelloni(seq, []Frame{frame}), remote); err != nil {
		d.stats.writeErrors.Add(1)
		return err
	}
	d.stats.framesSent.Add(1)
	return nil
}

// Statistics returns driver counters
func (d *CannelloniDriver) Statistics() DriverStats {
	return DriverStats{
		FramesSent:     d.stats.framesSent.Load(),
		FramesReceived: d.stats.framesReceived.Load(),
		WriteErrors:    d.stats.writeErrors.Load(),
		ReadErrors:     d.stats.readErrors.Load(),
		Connects:       d.stats.connects.Load(),
		Disconnects:    d.stats.disconnects.Load(),
	}
}

// LocalAddr returns the bound address
func (d *CannelloniDriver) LocalAddr() net.Addr {
	d.connLock.RLock()
	defer d.connLock.RUnlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}
