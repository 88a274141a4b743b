package isobus

import (
	"fmt"
	"time"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/transport"
)

// Config holds configuration for the network manager
type Config struct {
	// Channels is the number of CAN channels. Default: 1
	Channels uint8

	// TickInterval is how often Run calls Update. Default: 10ms
	TickInterval time.Duration

	// Transport configures the session engine
	Transport transport.Config

	// AddressClaim configures the control function registry
	AddressClaim controlfunction.Config
}

// DefaultConfig returns default network configuration
func DefaultConfig() Config {
	return Config{
		Channels:     1,
		TickInterval: 10 * time.Millisecond,
		Transport:    transport.DefaultConfig(),
		AddressClaim: controlfunction.DefaultConfig(),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Channels == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.TickInterval > c.Transport.BAMInterFrameDelay {
		return fmt.Errorf("tick interval %v longer than BAM inter-frame delay %v", c.TickInterval, c.Transport.BAMInterFrameDelay)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.AddressClaim.Validate(); err != nil {
		return fmt.Errorf("address claim: %w", err)
	}
	return nil
}
