//go:build !linux

package hardware

import (
	"context"
	"errors"
)

var ErrSocketCANUnsupported = errors.New("socketcan is only available on linux")

// SocketCANDriver is unavailable on this platform
type SocketCANDriver struct{}

// NewSocketCANDriver always fails on this platform
func NewSocketCANDriver(name string) (*SocketCANDriver, error) {
	return nil, ErrSocketCANUnsupported
}

func (d *SocketCANDriver) Open() error   { return ErrSocketCANUnsupported }
func (d *SocketCANDriver) Close() error  { return nil }
func (d *SocketCANDriver) IsValid() bool { return false }
func (d *SocketCANDriver) ReadFrame(ctx context.Context) (Frame, error) {
	return Frame{}, ErrSocketCANUnsupported
}
func (d *SocketCANDriver) WriteFrame(ctx context.Context, f Frame) error {
	return ErrSocketCANUnsupported
}
func (d *SocketCANDriver) Statistics() DriverStats { return DriverStats{} }
