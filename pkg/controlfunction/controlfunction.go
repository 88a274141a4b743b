// Package controlfunction tracks the control functions on each CAN channel
// and runs ISO 11783-5 address claiming for the ones this stack owns.
package controlfunction

import (
	"fmt"
	"sync"

	"agisostack/isobus-go/pkg/identifier"
	"agisostack/isobus-go/pkg/name"
)

// Kind is the role of a control function
type Kind int

const (
	Internal  Kind = iota // Owned by this stack, claims its own address
	External              // Observed on the bus
	Partnered             // External device selected by NAME filters
)

// String returns string representation of Kind
func (k Kind) String() string {
	switch k {
	case Internal:
		return "Internal"
	case External:
		return "External"
	case Partnered:
		return "Partnered"
	default:
		return "Unknown"
	}
}

// ControlFunction is a NAME, the address it currently holds and the
// channel it lives on. Only the Registry mutates it; readers may call the
// accessors from any goroutine.
type ControlFunction struct {
	mu      sync.RWMutex
	kind    Kind
	name    name.NAME
	address uint8
	channel uint8

	// Internal only
	claim *claimer

	// Partnered only
	filters []name.Filter
	bound   bool
}

func newControlFunction(kind Kind, n name.NAME, address, channel uint8) *ControlFunction {
	return &ControlFunction{
		kind:    kind,
		name:    n,
		address: address,
		channel: channel,
	}
}

// Kind returns the control function role.
func (cf *ControlFunction) Kind() Kind {
	return cf.kind
}

// NAME returns the NAME. For an unbound partner this is zero.
func (cf *ControlFunction) NAME() name.NAME {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.name
}

// Address returns the current address, NullAddress when none is held.
func (cf *ControlFunction) Address() uint8 {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.address
}

// Channel returns the CAN channel index.
func (cf *ControlFunction) Channel() uint8 {
	return cf.channel
}

// IsAddressValid reports whether the address is neither NULL nor global.
func (cf *ControlFunction) IsAddressValid() bool {
	return cf.Address() <= identifier.MaxAddress
}

// Filters returns the NAME filters of a partner.
func (cf *ControlFunction) Filters() []name.Filter {
	out := make([]name.Filter, len(cf.filters))
	copy(out, cf.filters)
	return out
}

// IsBound reports whether a partner has been matched to a device on the bus.
func (cf *ControlFunction) IsBound() bool {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.bound
}

// ClaimState returns the address claim state of an internal control
// function and ClaimStateNone for the other kinds.
func (cf *ControlFunction) ClaimState() ClaimState {
	if cf.claim == nil {
		return ClaimStateNone
	}
	return cf.claim.state()
}

// PreferredAddress returns the address an internal control function tries
// first.
func (cf *ControlFunction) PreferredAddress() uint8 {
	if cf.claim == nil {
		return identifier.NullAddress
	}
	return cf.claim.preferred
}

func (cf *ControlFunction) setAddress(address uint8) uint8 {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	old := cf.address
	cf.address = address
	return old
}

func (cf *ControlFunction) bind(n name.NAME, address uint8) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.name = n
	cf.address = address
	cf.bound = true
}

// String returns string representation of the control function
func (cf *ControlFunction) String() string {
	return fmt.Sprintf("CF{%s ch=%d addr=0x%02X NAME=0x%016X}",
		cf.kind, cf.channel, cf.Address(), cf.NAME().Raw())
}
