package hardware

import (
	"context"
	"testing"
	"time"
)

func TestTCPDriverRoundTrip(t *testing.T) {
	server, err := NewTCPDriver(TCPDriverConfig{Address: "127.0.0.1:0", IsServer: true})
	if err != nil {
		t.Fatalf("NewTCPDriver() error = %v", err)
	}
	if err := server.Open(); err != nil {
		t.Fatalf("server Open() error = %v", err)
	}
	defer server.Close()

	client, err := NewTCPDriver(TCPDriverConfig{Address: server.LocalAddr().String(), ReconnectDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTCPDriver() error = %v", err)
	}
	if err := client.Open(); err != nil {
		t.Fatalf("client Open() error = %v", err)
	}
	defer client.Close()
	waitFor(t, server.IsConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, _ := NewFrame(0, 0x18ECFF80, true, []byte{0x20, 0x0E, 0x00, 0x02, 0xFF, 0x00, 0xEF, 0x00})
	if err := client.WriteFrame(ctx, out); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	in, err := server.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if in.Identifier != out.Identifier || in.Data != out.Data || !in.Extended {
		t.Errorf("ReadFrame() = %v, want %v", in, out)
	}

	if s := client.Statistics(); s.FramesSent != 1 || s.Connects != 1 {
		t.Errorf("client stats = %+v", s)
	}
}

func TestTCPDriverDialFailure(t *testing.T) {
	d, _ := NewTCPDriver(TCPDriverConfig{Address: "127.0.0.1:1", ReconnectDelay: time.Millisecond, DialAttempts: 2})
	if err := d.Open(); err == nil {
		d.Close()
		t.Fatal("Open() error = nil, want dial failure")
	}
	if d.IsValid() {
		t.Error("IsValid() = true after failed Open")
	}
}

func TestCannelloniDriverRoundTrip(t *testing.T) {
	a, _ := NewCannelloniDriver(CannelloniDriverConfig{LocalAddress: "127.0.0.1:0", RemoteAddress: "127.0.0.1:9"})
	if err := a.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer a.Close()

	b, _ := NewCannelloniDriver(CannelloniDriverConfig{
		LocalAddress:  "127.0.0.1:0",
		RemoteAddress: a.LocalAddr().String(),
		ReadTimeout:   50 * time.Millisecond,
	})
	if err := b.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, _ := NewFrame(0, 0x0CFE4980, true, []byte{9, 8, 7})
	if err := b.WriteFrame(ctx, out); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	in, err := a.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if in.Identifier != out.Identifier || in.Length != 3 || in.Data != out.Data {
		t.Errorf("ReadFrame() = %v, want %v", in, out)
	}

	b.Close()
	if err := b.WriteFrame(ctx, out); err != ErrDriverClosed {
		t.Errorf("WriteFrame() after Close error = %v, want %v", err, ErrDriverClosed)
	}
}
