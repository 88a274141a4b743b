package controlfunction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"agisostack/isobus-go/pkg/identifier"
	"agisostack/isobus-go/pkg/internal/logger"
	"agisostack/isobus-go/pkg/name"
)

// Parameter groups used by address claiming
const (
	PGNAddressClaim uint32 = 0xEE00
	PGNRequest      uint32 = 0xEA00
)

var (
	ErrDuplicateName   = errors.New("NAME already registered on channel")
	ErrNoFilters       = errors.New("partner needs at least one NAME filter")
	ErrNotInternal     = errors.New("control function is not internal")
	ErrInvalidAddress  = errors.New("address outside claimable range")
	ErrNotRegistered   = errors.New("control function not registered")
	ErrAddressInUse    = errors.New("address held by a higher priority NAME")
	ErrRequestTooShort = errors.New("request payload shorter than 3 bytes")
)

// FrameSender transmits a single CAN frame on a channel.
type FrameSender interface {
	SendFrame(channel uint8, id identifier.Identifier, data []byte) error
}

// AddressChangeFunc is called after a control function moved to a new
// address. NullAddress means the address was lost. It runs with the
// Registry locked and must not call back into it.
type AddressChangeFunc func(cf *ControlFunction, oldAddress, newAddress uint8)

type cfKey struct {
	channel uint8
	name    name.NAME
}

// Registry owns every known control function. Lookups are safe from any
// goroutine; mutation is expected from a single caller at a time.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	sender   FrameSender
	logger   logger.Logger
	onChange AddressChangeFunc

	internal []*ControlFunction
	partners []*ControlFunction
	external map[cfKey]*ControlFunction
}

// NewRegistry creates a registry that sends claim frames through sender.
func NewRegistry(cfg Config, sender FrameSender, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Registry{
		cfg:      cfg,
		sender:   sender,
		logger:   log,
		external: make(map[cfKey]*ControlFunction),
	}
}

// OnAddressChanged installs the address change hook.
func (r *Registry) OnAddressChanged(fn AddressChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// RegisterInternal adds a control function owned by this stack. It starts
// claiming on the next Update.
func (r *Registry) RegisterInternal(n name.NAME, preferredAddress, channel uint8) (*ControlFunction, error) {
	if preferredAddress > identifier.MaxAddress {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidAddress, preferredAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cf := range r.internal {
		if cf.channel == channel && cf.name == n {
			return nil, fmt.Errorf("%w: 0x%016X", ErrDuplicateName, n.Raw())
		}
	}

	cf := newControlFunction(Internal, n, identifier.NullAddress, channel)
	cf.claim = newClaimer(n, preferredAddress, r.cfg.RandomSeed, r.logger)
	r.internal = append(r.internal, cf)

	// A device we already saw under this NAME is really us
	delete(r.external, cfKey{channel, n})

	r.logger.Info("Registry: internal %s registered, preferred address 0x%02X", n, preferredAddress)
	return cf, nil
}

// RegisterPartner adds a partner that binds to the first device on the
// channel whose NAME matches every filter.
func (r *Registry) RegisterPartner(filters []name.Filter, channel uint8) (*ControlFunction, error) {
	if len(filters) == 0 {
		return nil, ErrNoFilters
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cf := newControlFunction(Partnered, 0, identifier.NullAddress, channel)
	cf.filters = append([]name.Filter(nil), filters...)
	r.partners = append(r.partners, cf)

	for key, ext := range r.external {
		if key.channel == channel && name.MatchesAll(filters, key.name) {
			cf.bind(key.name, ext.Address())
			delete(r.external, key)
			r.logger.Info("Registry: partner bound to known %s", cf)
			break
		}
	}

	return cf, nil
}

// Deregister removes a control function. Internal control functions stop
// claiming and keep no address.
func (r *Registry) Deregister(cf *ControlFunction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cf.kind {
	case Internal:
		if !remove(&r.internal, cf) {
			return ErrNotRegistered
		}
	case Partnered:
		if !remove(&r.partners, cf) {
			return ErrNotRegistered
		}
	default:
		key := cfKey{cf.channel, cf.name}
		if r.external[key] != cf {
			return ErrNotRegistered
		}
		delete(r.external, key)
	}
	cf.setAddress(identifier.NullAddress)
	return nil
}

func remove(list *[]*ControlFunction, cf *ControlFunction) bool {
	for i, c := range *list {
		if c == cf {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// LookupByAddress returns the control function holding address on channel.
func (r *Registry) LookupByAddress(channel, address uint8) *ControlFunction {
	if address > identifier.MaxAddress {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddress(channel, address, nil)
}

func (r *Registry) byAddress(channel, address uint8, except *ControlFunction) *ControlFunction {
	for _, cf := range r.internal {
		if cf != except && cf.channel == channel && cf.Address() == address {
			return cf
		}
	}
	for _, cf := range r.partners {
		if cf != except && cf.channel == channel && cf.IsBound() && cf.Address() == address {
			return cf
		}
	}
	for key, cf := range r.external {
		if cf != except && key.channel == channel && cf.Address() == address {
			return cf
		}
	}
	return nil
}

// LookupByName returns the control function with NAME n on any channel,
// internal ones first.
func (r *Registry) LookupByName(n name.NAME) *ControlFunction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cf := range r.internal {
		if cf.name == n {
			return cf
		}
	}
	for _, cf := range r.partners {
		if cf.IsBound() && cf.NAME() == n {
			return cf
		}
	}
	for key, cf := range r.external {
		if key.name == n {
			return cf
		}
	}
	return nil
}

// lookupPeer returns the non-internal control function with NAME n on channel.
func (r *Registry) lookupPeer(channel uint8, n name.NAME) *ControlFunction {
	for _, cf := range r.partners {
		if cf.channel == channel && cf.IsBound() && cf.NAME() == n {
			return cf
		}
	}
	return r.external[cfKey{channel, n}]
}

func (r *Registry) internalByName(channel uint8, n name.NAME) *ControlFunction {
	for _, cf := range r.internal {
		if cf.channel == channel && cf.name == n {
			return cf
		}
	}
	return nil
}

// Internal returns the internal control functions on channel.
func (r *Registry) Internal(channel uint8) []*ControlFunction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ControlFunction
	for _, cf := range r.internal {
		if cf.channel == channel {
			out = append(out, cf)
		}
	}
	return out
}

// All returns a snapshot of every control function on channel.
func (r *Registry) All(channel uint8) []*ControlFunction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ControlFunction
	for _, cf := range r.internal {
		if cf.channel == channel {
			out = append(out, cf)
		}
	}
	for _, cf := range r.partners {
		if cf.channel == channel {
			out = append(out, cf)
		}
	}
	for key, cf := range r.external {
		if key.channel == channel {
			out = append(out, cf)
		}
	}
	return out
}

// IsInternalAddress reports whether an internal control function on
// channel currently holds address.
func (r *Registry) IsInternalAddress(channel, address uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cf := range r.internal {
		if cf.channel == channel && cf.Address() == address && address <= identifier.MaxAddress {
			return true
		}
	}
	return false
}

// ClaimAddress makes an internal control function claim address now,
// skipping the request and contention wait.
func (r *Registry) ClaimAddress(cf *ControlFunction, address uint8) error {
	if cf == nil || cf.kind != Internal {
		return ErrNotInternal
	}
	if address > identifier.MaxAddress {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidAddress, address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.internalByName(cf.channel, cf.name) != cf {
		return ErrNotRegistered
	}
	if holder := r.byAddress(cf.channel, address, cf); holder != nil && holder.NAME() < cf.name {
		return fmt.Errorf("%w: 0x%02X", ErrAddressInUse, address)
	}
	r.claim(cf, address)
	return nil
}

// Update advances the claim state machines. Call it periodically.
func (r *Registry) Update(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cf := range append([]*ControlFunction(nil), r.internal...) {
		c := cf.claim
		switch c.state() {
		case ClaimStateNone:
			c.fire(eventStart)
			c.deadline = now.Add(c.delay)

		case ClaimStateWaitForClaim:
			if now.Before(c.deadline) {
				continue
			}
			r.sendRequestForClaim(cf)
			c.fire(eventRequest)
			c.deadline = now.Add(r.cfg.ContentionPeriod + c.delay)

		case ClaimStateWaitForContention:
			if now.Before(c.deadline) {
				continue
			}
			r.claimPreferred(cf)
		}
	}
}

// claimPreferred claims the preferred address unless a higher priority
// NAME already holds it.
func (r *Registry) claimPreferred(cf *ControlFunction) {
	address := cf.claim.preferred
	if holder := r.byAddress(cf.channel, address, cf); holder != nil && holder.NAME() < cf.name {
		r.relocate(cf, address)
		return
	}
	r.claim(cf, address)
}

// relocate moves cf off an address it lost, to a free arbitrary address
// when its NAME allows it and to NULL otherwise.
func (r *Registry) relocate(cf *ControlFunction, lost uint8) {
	if cf.name.ArbitraryAddressCapable() {
		if address, ok := r.freeArbitraryAddress(cf.channel, lost); ok {
			r.logger.Info("Registry: %s lost 0x%02X, moving to 0x%02X", cf.name, lost, address)
			r.claim(cf, address)
			return
		}
	}
	r.cannotClaim(cf)
}

func (r *Registry) freeArbitraryAddress(channel, exclude uint8) (uint8, bool) {
	for a := ArbitraryAddressMin; a <= ArbitraryAddressMax; a++ {
		if a != exclude && r.byAddress(channel, a, nil) == nil {
			return a, true
		}
	}
	return identifier.NullAddress, false
}

// claim sends an address claim for cf at address and takes it over.
func (r *Registry) claim(cf *ControlFunction, address uint8) {
	r.sendClaim(cf.channel, address, cf.name)

	old := cf.setAddress(address)
	if !cf.claim.is(ClaimStateClaimed) {
		cf.claim.fire(eventClaim)
	}
	if old != address {
		r.logger.Info("Registry: %s claimed address 0x%02X on channel %d", cf.name, address, cf.channel)
		r.notify(cf, old, address)
	}

	// Other control functions on this channel see the claim as the bus would
	r.observeClaim(cf.channel, address, cf.name, cf)
}

// cannotClaim announces that cf holds no address.
func (r *Registry) cannotClaim(cf *ControlFunction) {
	r.sendClaim(cf.channel, identifier.NullAddress, cf.name)
	old := cf.setAddress(identifier.NullAddress)
	cf.claim.fire(eventFail)
	r.logger.Warn("Registry: %s unable to claim an address on channel %d", cf.name, cf.channel)
	if old != identifier.NullAddress {
		r.notify(cf, old, identifier.NullAddress)
	}
}

func (r *Registry) sendClaim(channel, source uint8, n name.NAME) {
	id := identifier.New(identifier.Extended, PGNAddressClaim, identifier.PriorityDefault6, identifier.GlobalAddress, source)
	if err := r.sender.SendFrame(channel, id, n.Bytes()); err != nil {
		r.logger.Warn("Registry: address claim send failed on channel %d: %v", channel, err)
	}
}

func (r *Registry) sendRequestForClaim(cf *ControlFunction) {
	id := identifier.New(identifier.Extended, PGNRequest, identifier.PriorityDefault6, identifier.GlobalAddress, identifier.NullAddress)
	pgn := PGNAddressClaim
	data := []byte{byte(pgn), byte(pgn >> 8), byte(pgn >> 16)}
	if err := r.sender.SendFrame(cf.channel, id, data); err != nil {
		r.logger.Warn("Registry: request for address claim failed on channel %d: %v", cf.channel, err)
	}
}

func (r *Registry) notify(cf *ControlFunction, old, address uint8) {
	if r.onChange != nil {
		r.onChange(cf, old, address)
	}
}

// ProcessAddressClaim handles an address claim received on channel.
func (r *Registry) ProcessAddressClaim(channel, source uint8, claimant name.NAME) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeClaim(channel, source, claimant, nil)
}

// observeClaim applies a claim of source by claimant. origin is the
// internal control function that sent it, nil for claims from the bus.
func (r *Registry) observeClaim(channel, source uint8, claimant name.NAME, origin *ControlFunction) {
	defended := false

	for _, cf := range append([]*ControlFunction(nil), r.internal...) {
		if cf == origin || cf.channel != channel || cf.name == claimant {
			continue
		}
		if source > identifier.MaxAddress || cf.Address() != source {
			continue
		}
		if claimant < cf.name {
			r.relocate(cf, source)
		} else {
			r.logger.Info("Registry: defending 0x%02X for %s", source, cf.name)
			r.sendClaim(channel, source, cf.name)
			defended = true
		}
	}

	address := source
	if defended {
		address = identifier.NullAddress
		if origin != nil {
			r.relocate(origin, source)
			return
		}
	}

	if address <= identifier.MaxAddress {
		for key, cf := range r.external {
			if key.channel == channel && key.name != claimant && cf.Address() == address {
				cf.setAddress(identifier.NullAddress)
				r.notify(cf, address, identifier.NullAddress)
			}
		}
		for _, cf := range r.partners {
			if cf.channel == channel && cf.IsBound() && cf.NAME() != claimant && cf.Address() == address {
				cf.setAddress(identifier.NullAddress)
				r.notify(cf, address, identifier.NullAddress)
			}
		}
	}

	if r.internalByName(channel, claimant) != nil {
		return
	}

	if cf := r.lookupPeer(channel, claimant); cf != nil {
		if old := cf.setAddress(address); old != address {
			r.logger.Debug("Registry: %s moved 0x%02X -> 0x%02X", claimant, old, address)
			r.notify(cf, old, address)
		}
		return
	}

	for _, p := range r.partners {
		if p.channel == channel && !p.IsBound() && name.MatchesAll(p.filters, claimant) {
			p.bind(claimant, address)
			r.logger.Info("Registry: partner bound to %s at 0x%02X", claimant, address)
			r.notify(p, identifier.NullAddress, address)
			return
		}
	}

	cf := newControlFunction(External, claimant, address, channel)
	r.external[cfKey{channel, claimant}] = cf
	r.logger.Debug("Registry: new external %s at 0x%02X on channel %d", claimant, address, channel)
}

// ProcessRequest answers a request for address claim sent to destination.
// Payloads asking for other parameter groups are ignored.
func (r *Registry) ProcessRequest(channel, destination uint8, data []byte) error {
	if len(data) < 3 {
		return ErrRequestTooShort
	}
	requested := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	if requested != PGNAddressClaim {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cf := range r.internal {
		if cf.channel != channel {
			continue
		}
		address := cf.Address()
		if destination != identifier.GlobalAddress && destination != address {
			continue
		}
		switch cf.ClaimState() {
		case ClaimStateClaimed:
			r.sendClaim(channel, address, cf.name)
		case ClaimStateUnableToClaim:
			r.sendClaim(channel, identifier.NullAddress, cf.name)
		}
	}
	return nil
}
