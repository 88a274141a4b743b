package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/spf13/cobra"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/hardware"
	"agisostack/isobus-go/pkg/isobus"
	"agisostack/isobus-go/pkg/name"
)

const openAttempts = 5

// NAME of the control function used when the config file declares none
var (
	cfPreferred    uint8
	cfIdentity     uint32
	cfManufacturer uint16
	cfFunction     uint8
	cfIndustry     uint8
	claimTimeout   time.Duration
)

func addControlFunctionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Uint8Var(&cfPreferred, "preferred", 0x1C, "preferred address when the config has no control function")
	f.Uint32Var(&cfIdentity, "identity", 2, "NAME identity number")
	f.Uint16Var(&cfManufacturer, "manufacturer", 64, "NAME manufacturer code")
	f.Uint8Var(&cfFunction, "function", uint8(name.FunctionSteeringControl), "NAME function code")
	f.Uint8Var(&cfIndustry, "industry-group", 1, "NAME industry group")
	f.DurationVar(&claimTimeout, "claim-timeout", 5*time.Second, "how long to wait for the address claim")
}

// ensureControlFunction adds the flag described control function to a
// config without one
func ensureControlFunction(fc *isobus.FileConfig) {
	if len(fc.ControlFunctions) > 0 {
		return
	}
	fc.ControlFunctions = append(fc.ControlFunctions, isobus.ControlFunctionConfig{
		PreferredAddress: cfPreferred,
		Name: isobus.NameConfig{
			IdentityNumber:          cfIdentity,
			ManufacturerCode:        cfManufacturer,
			FunctionCode:            cfFunction,
			IndustryGroup:           cfIndustry,
			ArbitraryAddressCapable: true,
		},
	})
}

// openDriver opens d, retrying while the bus or peer is unavailable
func openDriver(ctx context.Context, channel uint8, d hardware.Driver) error {
	return retry.Do(d.Open,
		retry.Context(ctx),
		retry.Attempts(openAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("channel %d: open attempt %d failed: %v", channel, n+1, err)
		}),
	)
}

// openStack builds the configured stack with every driver already open
func openStack(ctx context.Context, opts ...isobus.Option) (*isobus.Stack, error) {
	s, err := isobus.NewStack(fileConfig, log, opts...)
	if err != nil {
		return nil, err
	}
	hw := s.Interface
	for i := uint8(0); i < hw.NumberOfChannels(); i++ {
		d := hw.Driver(i)
		if d == nil {
			continue
		}
		if err := openDriver(ctx, i, d); err != nil {
			closeDrivers(hw)
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return s, nil
}

func closeDrivers(hw *hardware.Interface) {
	for i := uint8(0); i < hw.NumberOfChannels(); i++ {
		if d := hw.Driver(i); d != nil {
			d.Close()
		}
	}
}

// running is a stack whose manager runs in the background
type running struct {
	stack  *isobus.Stack
	cancel context.CancelFunc
	done   chan error
}

func start(ctx context.Context, s *isobus.Stack) *running {
	runCtx, cancel := context.WithCancel(ctx)
	r := &running{stack: s, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- s.Manager.Run(runCtx) }()
	return r
}

// stop ends the run and returns its error; cancellation is not an error
func (r *running) stop() error {
	r.cancel()
	err := <-r.done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitFor polls cond until it holds, ctx ends or timeout passes
func waitFor(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var errUnableToClaim = errors.New("unable to claim an address")

// waitClaimed waits for cf to finish its address claim
func waitClaimed(ctx context.Context, cf *controlfunction.ControlFunction) error {
	err := waitFor(ctx, claimTimeout, func() (bool, error) {
		switch cf.ClaimState() {
		case controlfunction.ClaimStateClaimed:
			return true, nil
		case controlfunction.ClaimStateUnableToClaim:
			return false, errUnableToClaim
		}
		return false, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("address claim did not finish within %v", claimTimeout)
	}
	return err
}
