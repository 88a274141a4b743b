package isobus

import (
	"fmt"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/hardware"
	"agisostack/isobus-go/pkg/internal/logger"
)

// Stack is a manager built from a FileConfig together with its hardware
// and the control functions the file declares.
type Stack struct {
	Manager   *Manager
	Interface *hardware.Interface
	Internal  []*controlfunction.ControlFunction
	Partners  []*controlfunction.ControlFunction
}

// NewDriver creates the driver a channel entry describes
func NewDriver(c ChannelConfig) (hardware.Driver, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	switch c.Driver {
	case DriverSocketCAN:
		return hardware.NewSocketCANDriver(c.Interface)
	case DriverCannelloni:
		return hardware.NewCannelloniDriver(hardware.CannelloniDriverConfig{
			LocalAddress:  c.Address,
			RemoteAddress: c.Remote,
		})
	case DriverTCP:
		return hardware.NewTCPDriver(hardware.TCPDriverConfig{Address: c.Address, IsServer: c.Server})
	default:
		return hardware.NewQUICDriver(hardware.QUICDriverConfig{Address: c.Address, IsServer: c.Server})
	}
}

// NewStack assembles the hardware interface, the drivers, the manager and
// the configured control functions. Nothing is opened until Run.
func NewStack(fc *FileConfig, log logger.Logger, opts ...Option) (*Stack, error) {
	cfg, err := fc.ManagerConfig()
	if err != nil {
		return nil, err
	}

	hw := hardware.NewInterface(log)
	if err := hw.SetNumberOfChannels(cfg.Channels); err != nil {
		return nil, err
	}
	for i, ch := range fc.Channels {
		d, err := NewDriver(ch)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		if err := hw.AssignDriver(uint8(i), d); err != nil {
			return nil, err
		}
	}
	return assemble(fc, cfg, hw, log, opts...)
}

// NewStackWithInterface is NewStack for an interface whose drivers are
// already assigned; the channels of fc only set the channel count.
func NewStackWithInterface(fc *FileConfig, hw *hardware.Interface, log logger.Logger, opts ...Option) (*Stack, error) {
	cfg, err := fc.ManagerConfig()
	if err != nil {
		return nil, err
	}
	if n := hw.NumberOfChannels(); n > cfg.Channels {
		cfg.Channels = n
	}
	return assemble(fc, cfg, hw, log, opts...)
}

func assemble(fc *FileConfig, cfg Config, hw *hardware.Interface, log logger.Logger, opts ...Option) (*Stack, error) {
	m, err := NewManager(cfg, hw, log, opts...)
	if err != nil {
		return nil, err
	}
	s := &Stack{Manager: m, Interface: hw}

	for i, c := range fc.ControlFunctions {
		cf, err := m.RegisterInternal(c.Name.NAME(), c.PreferredAddress, c.Channel)
		if err != nil {
			return nil, fmt.Errorf("control function %d: %w", i, err)
		}
		s.Internal = append(s.Internal, cf)
	}
	for i, p := range fc.Partners {
		filters, err := p.NameFilters()
		if err != nil {
			return nil, fmt.Errorf("partner %d: %w", i, err)
		}
		cf, err := m.RegisterPartner(filters, p.Channel)
		if err != nil {
			return nil, fmt.Errorf("partner %d: %w", i, err)
		}
		s.Partners = append(s.Partners, cf)
	}
	return s, nil
}
