package hardware

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPDriver tunnels frames over a TCP connection to a gateway or a peer
// stack. In server mode the newest accepted connection is used.
type TCPDriver struct {
	streamDriver

	address  string
	isServer bool
	listener net.Listener
}

// TCPDriverConfig configures a TCP driver
type TCPDriverConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
	DialAttempts   uint          // Dial attempts per reconnect (0 = 3)
}

// NewTCPDriver creates a closed TCP driver
func NewTCPDriver(config TCPDriverConfig) (*TCPDriver, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.DialAttempts == 0 {
		config.DialAttempts = 3
	}

	d := &TCPDriver{
		address:  config.Address,
		isServer: config.IsServer,
	}
	d.reconnectDelay = config.ReconnectDelay
	d.writeTimeout = config.WriteTimeout
	d.dialAttempts = config.DialAttempts
	return d, nil
}

// Open listens or connects depending on the mode
func (d *TCPDriver) Open() error {
	if d.open.Load() {
		return nil
	}
	d.start()

	if d.isServer {
		listener, err := net.Listen("tcp", d.address)
		if err != nil {
			d.stop()
			return fmt.Errorf("failed to listen on %s: %w", d.address, err)
		}
		d.listener = listener
		d.wg.Add(1)
		go d.acceptLoop()
		return nil
	}

	if err := d.dial(d.connect); err != nil {
		d.stop()
		return fmt.Errorf("failed to connect to %s: %w", d.address, err)
	}
	d.superviseClient(d.connect)
	return nil
}

func (d *TCPDriver) connect(ctx context.Context) (stream, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

func (d *TCPDriver) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !d.open.Load() {
				return
			}
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		d.attach(conn)
	}
}

// Close stops listening and drops the connection
func (d *TCPDriver) Close() error {
	if !d.open.Load() {
		return nil
	}
	var err error
	if d.listener != nil {
		err = d.listener.Close()
	}
	d.stop()
	return err
}

// LocalAddr returns the listening address in server mode
func (d *TCPDriver) LocalAddr() net.Addr {
	if d.listener != nil {
		return d.listener.Addr()
	}
	return nil
}
