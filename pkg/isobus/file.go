package isobus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agisostack/isobus-go/pkg/name"
	"agisostack/isobus-go/pkg/transport"
)

// Driver kinds accepted in a configuration file
const (
	DriverSocketCAN  = "socketcan"
	DriverCannelloni = "cannelloni"
	DriverTCP        = "tcp"
	DriverQUIC       = "quic"
)

// Duration is a time.Duration written as a string such as "750ms"
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// FileConfig is the YAML description of a stack
type FileConfig struct {
	LogLevel         string                  `yaml:"log_level,omitempty"`
	TickInterval     Duration                `yaml:"tick_interval,omitempty"`
	Channels         []ChannelConfig         `yaml:"channels"`
	Transport        TransportFileConfig     `yaml:"transport,omitempty"`
	ControlFunctions []ControlFunctionConfig `yaml:"control_functions,omitempty"`
	Partners         []PartnerConfig         `yaml:"partners,omitempty"`
}

// ChannelConfig selects the driver of one CAN channel
type ChannelConfig struct {
	Driver    string `yaml:"driver"`
	Interface string `yaml:"interface,omitempty"` // socketcan
	Address   string `yaml:"address,omitempty"`   // tcp, quic, cannelloni local
	Remote    string `yaml:"remote,omitempty"`    // cannelloni peer
	Server    bool   `yaml:"server,omitempty"`    // tcp, quic
}

// TransportFileConfig overrides transport defaults; zero keeps the default
type TransportFileConfig struct {
	T1                 Duration `yaml:"t1,omitempty"`
	T2                 Duration `yaml:"t2,omitempty"`
	T3                 Duration `yaml:"t3,omitempty"`
	T4                 Duration `yaml:"t4,omitempty"`
	Tr                 Duration `yaml:"tr,omitempty"`
	Th                 Duration `yaml:"th,omitempty"`
	BAMInterFrameDelay Duration `yaml:"bam_inter_frame_delay,omitempty"`
	PacketsPerCTS      uint8    `yaml:"packets_per_cts,omitempty"`
	ETPPacketsPerDPO   uint8    `yaml:"etp_max_packets_per_dpo,omitempty"`
	MaxReceiveLength   int      `yaml:"max_receive_length,omitempty"`
	MaxSessions        int      `yaml:"max_sessions,omitempty"`
}

// NameConfig lists the NAME fields of an internal control function
type NameConfig struct {
	IdentityNumber          uint32 `yaml:"identity_number"`
	ManufacturerCode        uint16 `yaml:"manufacturer_code"`
	ECUInstance             uint8  `yaml:"ecu_instance,omitempty"`
	FunctionInstance        uint8  `yaml:"function_instance,omitempty"`
	FunctionCode            uint8  `yaml:"function_code"`
	DeviceClass             uint8  `yaml:"device_class,omitempty"`
	DeviceClassInstance     uint8  `yaml:"device_class_instance,omitempty"`
	IndustryGroup           uint8  `yaml:"industry_group"`
	ArbitraryAddressCapable bool   `yaml:"arbitrary_address_capable,omitempty"`
}

// NAME builds the NAME value
func (c NameConfig) NAME() name.NAME {
	var n name.NAME
	n.SetIdentityNumber(c.IdentityNumber)
	n.SetManufacturerCode(c.ManufacturerCode)
	n.SetECUInstance(c.ECUInstance)
	n.SetFunctionInstance(c.FunctionInstance)
	n.SetFunctionCode(c.FunctionCode)
	n.SetDeviceClass(c.DeviceClass)
	n.SetDeviceClassInstance(c.DeviceClassInstance)
	n.SetIndustryGroup(c.IndustryGroup)
	n.SetArbitraryAddressCapable(c.ArbitraryAddressCapable)
	return n
}

// ControlFunctionConfig describes an internal control function
type ControlFunctionConfig struct {
	Channel          uint8      `yaml:"channel"`
	PreferredAddress uint8      `yaml:"preferred_address"`
	Name             NameConfig `yaml:"name"`
}

// FilterConfig is one NAME filter, named by parameter
type FilterConfig struct {
	Parameter string `yaml:"parameter"`
	Value     uint32 `yaml:"value"`
}

// PartnerConfig describes a partnered control function
type PartnerConfig struct {
	Channel uint8          `yaml:"channel"`
	Filters []FilterConfig `yaml:"filters"`
}

// NameFilters converts the filters, rejecting unknown parameter names
func (c PartnerConfig) NameFilters() ([]name.Filter, error) {
	out := make([]name.Filter, 0, len(c.Filters))
	for _, f := range c.Filters {
		p := name.ParseParameter(f.Parameter)
		if p == name.Other {
			return nil, fmt.Errorf("unknown NAME parameter %q", f.Parameter)
		}
		out = append(out, name.NewFilter(p, f.Value))
	}
	return out, nil
}

// LoadConfig reads a YAML stack description. Unknown fields are errors.
func LoadConfig(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// DecodeConfig parses a YAML stack description from r.
func DecodeConfig(r io.Reader) (*FileConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fc FileConfig
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := fc.ManagerConfig(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// ManagerConfig applies the file on top of DefaultConfig and validates it.
func (fc *FileConfig) ManagerConfig() (Config, error) {
	cfg := DefaultConfig()
	if n := len(fc.Channels); n > 0 {
		if n > 255 {
			return Config{}, fmt.Errorf("too many channels: %d", n)
		}
		cfg.Channels = uint8(n)
	}
	if fc.TickInterval != 0 {
		cfg.TickInterval = time.Duration(fc.TickInterval)
	}

	t := &cfg.Transport
	override := func(dst *time.Duration, v Duration) {
		if v != 0 {
			*dst = time.Duration(v)
		}
	}
	override(&t.T1, fc.Transport.T1)
	override(&t.T2, fc.Transport.T2)
	override(&t.T3, fc.Transport.T3)
	override(&t.T4, fc.Transport.T4)
	override(&t.Tr, fc.Transport.Tr)
	override(&t.Th, fc.Transport.Th)
	override(&t.BAMInterFrameDelay, fc.Transport.BAMInterFrameDelay)
	if fc.Transport.PacketsPerCTS != 0 {
		t.PacketsPerCTS = fc.Transport.PacketsPerCTS
	}
	if fc.Transport.ETPPacketsPerDPO != 0 {
		t.ETPMaxPacketsPerDPO = fc.Transport.ETPPacketsPerDPO
	}
	if fc.Transport.MaxReceiveLength != 0 {
		t.MaxReceiveLength = fc.Transport.MaxReceiveLength
	}
	if fc.Transport.MaxSessions != 0 {
		t.MaxSessions = fc.Transport.MaxSessions
	}

	for i, ch := range fc.Channels {
		if err := ch.validate(); err != nil {
			return Config{}, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	for i, cf := range fc.ControlFunctions {
		if int(cf.Channel) >= int(cfg.Channels) {
			return Config{}, fmt.Errorf("control function %d: %w: %d", i, ErrChannelOutOfRange, cf.Channel)
		}
	}
	for i, p := range fc.Partners {
		if int(p.Channel) >= int(cfg.Channels) {
			return Config{}, fmt.Errorf("partner %d: %w: %d", i, ErrChannelOutOfRange, p.Channel)
		}
		if _, err := p.NameFilters(); err != nil {
			return Config{}, fmt.Errorf("partner %d: %w", i, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c ChannelConfig) validate() error {
	switch c.Driver {
	case DriverSocketCAN:
		if c.Interface == "" {
			return errors.New("socketcan needs an interface")
		}
	case DriverCannelloni:
		if c.Remote == "" {
			return errors.New("cannelloni needs a remote address")
		}
	case DriverTCP, DriverQUIC:
		if c.Address == "" {
			return fmt.Errorf("%s needs an address", c.Driver)
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

// DefaultFileConfig returns a single SocketCAN channel setup
func DefaultFileConfig() *FileConfig {
	d := transport.DefaultConfig()
	return &FileConfig{
		LogLevel:     "info",
		TickInterval: Duration(10 * time.Millisecond),
		Channels:     []ChannelConfig{{Driver: DriverSocketCAN, Interface: "can0"}},
		Transport: TransportFileConfig{
			T1:                 Duration(d.T1),
			T2:                 Duration(d.T2),
			T3:                 Duration(d.T3),
			T4:                 Duration(d.T4),
			Tr:                 Duration(d.Tr),
			Th:                 Duration(d.Th),
			BAMInterFrameDelay: Duration(d.BAMInterFrameDelay),
			PacketsPerCTS:      d.PacketsPerCTS,
			ETPPacketsPerDPO:   d.ETPMaxPacketsPerDPO,
			MaxSessions:        d.MaxSessions,
		},
	}
}
