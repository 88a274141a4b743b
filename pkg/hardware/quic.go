package hardware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICNextProto is the ALPN protocol of the CAN tunnel
const QUICNextProto = "isobus-can"

// QUICDriver tunnels frames over a single QUIC stream
type QUICDriver struct {
	streamDriver

	address   string
	isServer  bool
	tlsConfig *tls.Config
	listener  *quic.Listener
	socket    *net.UDPConn
}

// QUICDriverConfig configures a QUIC driver
type QUICDriverConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
	DialAttempts   uint          // Dial attempts per reconnect (0 = 3)
	TLSConfig      *tls.Config   // Optional TLS config (if nil, will generate self-signed cert)
}

// quicStream closes its connection together with the stream
type quicStream struct {
	*quic.Stream
	conn   *quic.Conn
	socket net.PacketConn // client side only
}

func (s quicStream) Close() error {
	err := s.Stream.Close()
	s.conn.CloseWithError(0, "stream closed")
	if s.socket != nil {
		s.socket.Close()
	}
	return err
}

// NewQUICDriver creates a closed QUIC driver
func NewQUICDriver(config QUICDriverConfig) (*QUICDriver, error) {
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

	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	d := &QUICDriver{
		address:   config.Address,
		isServer:  config.IsServer,
		tlsConfig: tlsConfig,
	}
	d.reconnectDelay = config.ReconnectDelay
	d.writeTimeout = config.WriteTimeout
	d.dialAttempts = config.DialAttempts
	return d, nil
}

// generateTLSConfig generates a self-signed certificate for QUIC
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{QUICNextProto},
		InsecureSkipVerify: true, // self-signed
	}, nil
}

// Open listens or connects depending on the mode
func (d *QUICDriver) Open() error {
	if d.open.Load() {
		return nil
	}
	d.start()

	if d.isServer {
		if err := d.listen(); err != nil {
			d.stop()
			return err
		}
		return nil
	}

	if err := d.dial(d.connect); err != nil {
		d.stop()
		return fmt.Errorf("failed to connect to %s: %w", d.address, err)
	}
	d.superviseClient(d.connect)
	return nil
}

func (d *QUICDriver) listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", d.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", d.address, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.address, err)
	}
	listener, err := quic.Listen(udpConn, d.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}
	d.listener = listener
	d.socket = udpConn

	d.wg.Add(1)
	go d.acceptLoop()
	return nil
}

func (d *QUICDriver) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept(d.ctx)
		if err != nil {
			if !d.open.Load() || d.ctx.Err() != nil {
				return
			}
			continue
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			// The peer's stream becomes visible once it writes its first frame
			st, err := conn.AcceptStream(d.ctx)
			if err != nil {
				conn.CloseWithError(0, "no stream")
				return
			}
			d.attach(quicStream{Stream: st, conn: conn})
		}()
	}
}

func (d *QUICDriver) connect(ctx context.Context) (stream, error) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to create UDP socket: %w", err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", d.address)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to resolve remote address %s: %w", d.address, err)
	}

	conn, err := quic.Dial(ctx, udpConn, remoteAddr, d.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return nil, err
	}
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		udpConn.Close()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	return quicStream{Stream: st, conn: conn, socket: udpConn}, nil
}

// Close stops listening and drops the connection
func (d *QUICDriver) Close() error {
	if !d.open.Load() {
		return nil
	}
	d.cancel()
	var err error
	if d.listener != nil {
		err = d.listener.Close()
		d.socket.Close()
	}
	d.stop()
	return err
}

// LocalAddr returns the listening address in server mode
func (d *QUICDriver) LocalAddr() net.Addr {
	if d.listener != nil {
		return d.listener.Addr()
	}
	return nil
}
