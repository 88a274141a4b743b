// Package isobus is the network manager of the stack: it owns the control
// function registry and the transport engine, routes received frames to
// them and chooses how outgoing messages are sent.
package isobus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/hardware"
	"agisostack/isobus-go/pkg/identifier"
	"agisostack/isobus-go/pkg/internal/logger"
	"agisostack/isobus-go/pkg/message"
	"agisostack/isobus-go/pkg/name"
	"agisostack/isobus-go/pkg/transport"
)

// Hardware is the frame level collaborator of a Manager.
// *hardware.Interface implements it.
type Hardware interface {
	Send(frame hardware.Frame) error
	SetFrameHandler(fn hardware.FrameHandler)
	Start(ctx context.Context) error
	Stop() error
}

// MessageCallback receives a complete message. It runs without the
// manager locked and may send.
type MessageCallback func(msg *message.CANMessage)

// CallbackHandle identifies a registered callback
type CallbackHandle uint64

type callbackEntry struct {
	handle CallbackHandle
	pgn    uint32
	any    bool // every message, including ones addressed to other nodes
	fn     MessageCallback
}

type delivery struct {
	msg   *message.CANMessage
	forUs bool
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces time.Now for the manager and its transport engine.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithFrameObserver calls fn with every received frame before it is
// routed, including frames that are later dropped.
func WithFrameObserver(fn hardware.FrameHandler) Option {
	return func(m *Manager) { m.observer = fn }
}

// Manager is the root object of an ISO 11783 network. Every entry point
// is serialised by one lock, so frame ingestion and the update tick may
// run on different goroutines.
type Manager struct {
	mu       sync.Mutex
	config   Config
	hw       Hardware
	registry *controlfunction.Registry
	engine   *transport.Engine
	logger   logger.Logger
	now      func() time.Time
	stats    *Statistics
	observer hardware.FrameHandler

	callbacks  []callbackEntry
	nextHandle CallbackHandle
	pending    []delivery
	deferred   []func()
}

// NewManager creates a manager sending through hw.
func NewManager(config Config, hw Hardware, log logger.Logger, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network config: %w", err)
	}
	if hw == nil {
		return nil, errors.New("network manager needs hardware")
	}

	m := &Manager{
		config: config,
		hw:     hw,
		logger: logger.WithComponent(log, "network"),
		now:    time.Now,
		stats:  &Statistics{},
	}
	for _, opt := range opts {
		opt(m)
	}

	sender := managerSender{m}
	m.registry = controlfunction.NewRegistry(config.AddressClaim, sender, logger.WithComponent(log, "registry"))
	engine, err := transport.NewEngine(config.Transport, sender, log,
		transport.WithClock(m.now),
		transport.WithMessageHandler(m.onTransportMessage))
	if err != nil {
		return nil, err
	}
	m.engine = engine
	m.registry.OnAddressChanged(m.onAddressChanged)
	return m, nil
}

// unlock releases the manager, then delivers the messages and runs the
// completion callbacks queued while it was held.
func (m *Manager) unlock() {
	pending, deferred := m.pending, m.deferred
	m.pending, m.deferred = nil, nil
	callbacks := m.callbacks
	m.mu.Unlock()

	for _, fn := range deferred {
		fn()
	}
	for _, d := range pending {
		delivered := false
		for _, cb := range callbacks {
			if cb.any || (d.forUs && cb.pgn == d.msg.PGN()) {
				cb.fn(d.msg)
				delivered = true
			}
		}
		if delivered {
			m.stats.messagesDelivered.Add(1)
		}
	}
}

// Registry returns the control function registry
func (m *Manager) Registry() *controlfunction.Registry {
	return m.registry
}

// Config returns the manager configuration
func (m *Manager) Config() Config {
	return m.config
}

// Statistics returns the manager counters
func (m *Manager) Statistics() *Statistics {
	return m.stats
}

// TransportStatistics returns the session engine counters
func (m *Manager) TransportStatistics() transport.Statistics {
	return m.engine.Stats()
}

// Sessions returns a snapshot of active transport sessions
func (m *Manager) Sessions() []transport.SessionInfo {
	return m.engine.Sessions()
}

// RegisterInternal adds a control function owned by this stack. It starts
// claiming preferredAddress on the next Update.
func (m *Manager) RegisterInternal(n name.NAME, preferredAddress, channel uint8) (*controlfunction.ControlFunction, error) {
	if channel >= m.config.Channels {
		return nil, fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	m.mu.Lock()
	defer m.unlock()
	return m.registry.RegisterInternal(n, preferredAddress, channel)
}

// RegisterPartner adds a partner matching every filter.
func (m *Manager) RegisterPartner(filters []name.Filter, channel uint8) (*controlfunction.ControlFunction, error) {
	if channel >= m.config.Channels {
		return nil, fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	m.mu.Lock()
	defer m.unlock()
	return m.registry.RegisterPartner(filters, channel)
}

// Deregister removes a control function from the network.
func (m *Manager) Deregister(cf *controlfunction.ControlFunction) error {
	m.mu.Lock()
	defer m.unlock()
	return m.registry.Deregister(cf)
}

// AddCallback registers fn for messages of pgn sent to one of our control
// functions or to the global address.
func (m *Manager) AddCallback(pgn uint32, fn MessageCallback) CallbackHandle {
	return m.addCallback(callbackEntry{pgn: pgn, fn: fn})
}

// AddAnyControlFunctionCallback registers fn for every message, including
// single frame messages addressed to other nodes.
func (m *Manager) AddAnyControlFunctionCallback(fn MessageCallback) CallbackHandle {
	return m.addCallback(callbackEntry{any: true, fn: fn})
}

func (m *Manager) addCallback(entry callbackEntry) CallbackHandle {
	m.mu.Lock()
	defer m.unlock()
	m.nextHandle++
	entry.handle = m.nextHandle
	// copy on write, unlock iterates the old slice unlocked
	m.callbacks = append(append([]callbackEntry(nil), m.callbacks...), entry)
	return entry.handle
}

// RemoveCallback unregisters a callback. It reports whether h was known.
func (m *Manager) RemoveCallback(h CallbackHandle) bool {
	m.mu.Lock()
	defer m.unlock()
	kept := make([]callbackEntry, 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		if cb.handle != h {
			kept = append(kept, cb)
		}
	}
	removed := len(kept) != len(m.callbacks)
	m.callbacks = kept
	return removed
}

// Update advances address claiming and every transport session. Call it
// periodically; Run does.
func (m *Manager) Update(now time.Time) {
	m.mu.Lock()
	defer m.unlock()
	m.registry.Update(now)
	m.engine.Update(now)
}

// Run starts the hardware, routes its frames into ProcessRxFrame and
// calls Update every tick until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.hw.SetFrameHandler(m.ProcessRxFrame)
	if err := m.hw.Start(ctx); err != nil {
		return fmt.Errorf("start hardware: %w", err)
	}
	m.logger.Info("Network: running %d channels, tick %v", m.config.Channels, m.config.TickInterval)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ticker := time.NewTicker(m.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				m.Update(m.now())
			}
		}
	})
	err := group.Wait()
	if stopErr := m.hw.Stop(); stopErr != nil {
		m.logger.Warn("Network: hardware stop: %v", stopErr)
		if err == nil {
			err = stopErr
		}
	}
	m.logger.Info("Network: stopped")
	return err
}

// SendOption configures one SendMessage call
type SendOption func(*sendOptions)

type sendOptions struct {
	priority    identifier.Priority
	hasPriority bool
	onComplete  transport.CompleteFunc
}

// WithPriority overrides the default priority: 6 for single frames, 7 for
// transport sessions.
func WithPriority(p identifier.Priority) SendOption {
	return func(o *sendOptions) {
		o.priority = p
		o.hasPriority = true
	}
}

// WithCompletion sets a callback for the end of a transport session. It
// is not called for single frame messages.
func WithCompletion(fn transport.CompleteFunc) SendOption {
	return func(o *sendOptions) { o.onComplete = fn }
}

// SendMessage sends data as pgn from source to destination, or to every
// node when destination is nil. Payloads up to 8 bytes go out as one
// frame; longer ones start a TP, BAM or ETP session. A nil error means
// the frame was queued or the session started.
func (m *Manager) SendMessage(pgn uint32, data []byte, source, destination *controlfunction.ControlFunction, opts ...SendOption) error {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.unlock()

	err := m.send(pgn, data, source, destination, o)
	if err != nil {
		m.stats.sendRejected.Add(1)
		m.logger.Debug("Network: send PGN 0x%05X rejected: %v", pgn, err)
		return err
	}
	m.stats.messagesSent.Add(1)
	return nil
}

func (m *Manager) send(pgn uint32, data []byte, source, destination *controlfunction.ControlFunction, o sendOptions) error {
	if source == nil || source.Kind() != controlfunction.Internal {
		return ErrInvalidSource
	}
	if !source.IsAddressValid() {
		return fmt.Errorf("%w: %s", ErrAddressNotClaimed, source)
	}
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if len(data) > message.AbsoluteMaxMessageLength {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	channel := source.Channel()
	dst := identifier.GlobalAddress
	if destination != nil {
		if !destination.IsAddressValid() || destination.Channel() != channel {
			return fmt.Errorf("%w: %s", ErrNoDestination, destination)
		}
		dst = destination.Address()
	}

	if len(data) <= message.DataLength {
		if dst != identifier.GlobalAddress && !identifier.IsPDU1(pgn) {
			return fmt.Errorf("%w: 0x%05X", ErrDestinationNotAllowed, pgn)
		}
		priority := identifier.PriorityDefault6
		if o.hasPriority {
			priority = o.priority
		}
		id := identifier.New(identifier.Extended, pgn, priority, dst, source.Address())
		return m.sendFrame(channel, id, data)
	}

	priority := identifier.PriorityLowest7
	if o.hasPriority {
		priority = o.priority
	}
	var onComplete transport.CompleteFunc
	if o.onComplete != nil {
		fn := o.onComplete
		onComplete = func(info transport.SessionInfo, err error) {
			m.deferred = append(m.deferred, func() { fn(info, err) })
		}
	}

	err := m.engine.StartTx(channel, pgn, data, source.Address(), dst, priority, onComplete)
	if errors.Is(err, transport.ErrMessageTooLong) {
		return fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
	}
	return err
}

// ProcessRxFrame routes one received frame. Address claims and requests go
// to the registry, transport frames to the session engine and every other
// frame is delivered as a single frame message. Frames that cannot be used
// are counted and dropped.
func (m *Manager) ProcessRxFrame(frame hardware.Frame) {
	m.stats.framesReceived.Add(1)
	if m.observer != nil {
		m.observer(frame)
	}

	if !frame.Extended || frame.Length > message.DataLength {
		m.stats.droppedUnhandled.Add(1)
		return
	}
	if frame.Channel >= m.config.Channels {
		m.stats.droppedMalformed.Add(1)
		return
	}

	id := identifier.FromFrame(frame.Identifier, true)
	data := append([]byte(nil), frame.Payload()...)
	channel := frame.Channel

	m.mu.Lock()
	defer m.unlock()

	switch pgn := id.PGN(); {
	case pgn == controlfunction.PGNAddressClaim:
		claimant, err := name.FromBytes(data)
		if err != nil {
			m.stats.droppedMalformed.Add(1)
			m.logger.Debug("Network: bad address claim from 0x%02X: %v", id.SourceAddress(), err)
			return
		}
		m.registry.ProcessAddressClaim(channel, id.SourceAddress(), claimant)
		m.deliverSingle(channel, id, data)

	case pgn == controlfunction.PGNRequest:
		if err := m.registry.ProcessRequest(channel, id.DestinationAddress(), data); err != nil {
			m.stats.droppedMalformed.Add(1)
			return
		}
		m.deliverSingle(channel, id, data)

	case transport.IsTransportPGN(pgn):
		m.processTransport(channel, id, data)

	default:
		m.deliverSingle(channel, id, data)
	}
}

func (m *Manager) processTransport(channel uint8, id identifier.Identifier, data []byte) {
	dst := id.DestinationAddress()
	if dst != identifier.GlobalAddress && !m.registry.IsInternalAddress(channel, dst) {
		m.stats.droppedNotForUs.Add(1)
		return
	}
	err := m.engine.ProcessFrame(channel, id, data)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrMalformedFrame):
		m.stats.droppedMalformed.Add(1)
		m.logger.Debug("Network: %v", err)
	default:
		m.stats.droppedUnhandled.Add(1)
		if logger.FrameDebug() {
			m.logger.Debug("Network: transport frame %s dropped: %v", id, err)
		}
	}
}

// addressedToUs reports whether dst is global or one of our addresses.
func (m *Manager) addressedToUs(channel, dst uint8) bool {
	return dst == identifier.GlobalAddress || m.registry.IsInternalAddress(channel, dst)
}

func (m *Manager) deliverSingle(channel uint8, id identifier.Identifier, data []byte) {
	msg := message.New(message.Receive, id, channel, data)
	m.resolve(msg, id.SourceAddress(), id.DestinationAddress())
	m.pending = append(m.pending, delivery{msg: msg, forUs: m.addressedToUs(channel, id.DestinationAddress())})
}

// resolve fills in the control functions behind the addresses of msg.
func (m *Manager) resolve(msg *message.CANMessage, source, destination uint8) {
	if source <= identifier.MaxAddress {
		msg.Source = m.registry.LookupByAddress(msg.ChannelIndex, source)
	}
	if destination != identifier.GlobalAddress {
		msg.Destination = m.registry.LookupByAddress(msg.ChannelIndex, destination)
	}
}

// onTransportMessage runs from the engine after it unlocked, with the
// manager still locked.
func (m *Manager) onTransportMessage(tm transport.Message) {
	id := identifier.New(identifier.Extended, tm.PGN, tm.Priority, tm.Destination, tm.Source)
	msg := message.New(message.Receive, id, tm.Channel, tm.Data)
	m.resolve(msg, tm.Source, tm.Destination)
	m.pending = append(m.pending, delivery{msg: msg, forUs: true})
}

func (m *Manager) onAddressChanged(cf *controlfunction.ControlFunction, oldAddress, newAddress uint8) {
	m.logger.Debug("Network: %s moved 0x%02X -> 0x%02X", cf, oldAddress, newAddress)
	if cf.Kind() != controlfunction.Internal || oldAddress > identifier.MaxAddress || oldAddress == newAddress {
		return
	}
	// Sessions from the old address now belong to another control function
	if n := m.engine.AbortAddress(cf.Channel(), oldAddress); n > 0 {
		m.logger.Warn("Network: %s lost 0x%02X, aborted %d transport sessions", cf, oldAddress, n)
	}
}

func (m *Manager) sendFrame(channel uint8, id identifier.Identifier, data []byte) error {
	frame, err := hardware.NewFrame(channel, id.ID(), id.Type() == identifier.Extended, data)
	if err != nil {
		return err
	}
	if err := m.hw.Send(frame); err != nil {
		if errors.Is(err, hardware.ErrQueueFull) {
			return fmt.Errorf("%w: channel %d", ErrHardwareBusy, channel)
		}
		return err
	}
	m.stats.framesSent.Add(1)
	if logger.FrameDebug() {
		m.logger.Debug("Network: tx %s", frame)
	}
	return nil
}

// managerSender hands registry and engine frames to the hardware
type managerSender struct {
	m *Manager
}

func (s managerSender) SendFrame(channel uint8, id identifier.Identifier, data []byte) error {
	return s.m.sendFrame(channel, id, data)
}

// InternalControlFunctions returns our control functions on channel, by address.
func (m *Manager) InternalControlFunctions(channel uint8) []*controlfunction.ControlFunction {
	list := m.registry.Internal(channel)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Address() < list[j].Address() })
	return list
}
