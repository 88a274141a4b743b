package controlfunction

import (
	"fmt"
	"time"
)

// Address range an arbitrary address capable device may pick from
const (
	ArbitraryAddressMin uint8 = 128
	ArbitraryAddressMax uint8 = 247
)

// Config holds address claim timing
type Config struct {
	// ContentionPeriod is how long to wait after a request for address
	// claim before claiming. Default: 250ms per ISO 11783-5
	ContentionPeriod time.Duration

	// RandomSeed mixes with each NAME to derive the pre-claim delay
	RandomSeed uint64
}

// DefaultConfig returns default address claim configuration
func DefaultConfig() Config {
	return Config{
		ContentionPeriod: 250 * time.Millisecond,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.ContentionPeriod <= 0 {
		return fmt.Errorf("contention period must be positive, got %v", c.ContentionPeriod)
	}
	return nil
}
