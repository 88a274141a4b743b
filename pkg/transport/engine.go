// Package transport implements the ISO 11783-3 multi-frame transport
// protocols: connection mode TP, broadcast BAM and extended ETP.
package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"agisostack/isobus-go/pkg/identifier"
	"agisostack/isobus-go/pkg/internal/logger"
)

// FrameSender transmits a single CAN frame on a channel. It is called with
// the Engine locked and must not call back into it.
type FrameSender interface {
	SendFrame(channel uint8, id identifier.Identifier, data []byte) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the source of session timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMessageHandler sets the receiver of reassembled messages.
func WithMessageHandler(fn MessageFunc) Option {
	return func(e *Engine) { e.onMessage = fn }
}

// Engine runs every transport session of a network. Callbacks run after
// the engine lock is released, so they may start new sessions.
type Engine struct {
	mu        sync.Mutex
	config    Config
	sender    FrameSender
	logger    logger.Logger
	now       func() time.Time
	onMessage MessageFunc
	stats     *Statistics

	sessions map[sessionKey]*session
	deferred []func()
}

// NewEngine creates a session engine sending through sender.
func NewEngine(config Config, sender FrameSender, log logger.Logger, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	if sender == nil {
		return nil, errors.New("transport engine needs a frame sender")
	}
	e := &Engine{
		config:   config,
		sender:   sender,
		logger:   logger.WithComponent(log, "transport"),
		now:      time.Now,
		stats:    NewStatistics(),
		sessions: make(map[sessionKey]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetMessageHandler sets the receiver of reassembled messages.
func (e *Engine) SetMessageHandler(fn MessageFunc) {
	e.mu.Lock()
	defer e.unlock()
	e.onMessage = fn
}

// unlock releases the engine and runs the callbacks queued while it was held.
func (e *Engine) unlock() {
	calls := e.deferred
	e.deferred = nil
	e.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

// StartTx opens a transmit session for data from source to destination.
// GlobalAddress selects BAM, lengths above MaxTPLength select ETP. The
// first frame goes out before StartTx returns when the sender accepts it;
// otherwise Update retries it.
func (e *Engine) StartTx(channel uint8, pgn uint32, data []byte, source, destination uint8, priority identifier.Priority, onComplete CompleteFunc) error {
	if len(data) < MinMultiPacketLength {
		return ErrMessageTooShort
	}
	if source > identifier.MaxAddress || destination == identifier.NullAddress {
		return fmt.Errorf("%w: 0x%02X->0x%02X", ErrInvalidAddress, source, destination)
	}
	broadcast := destination == identifier.GlobalAddress
	mode, err := ModeFor(len(data), broadcast)
	if err != nil {
		return fmt.Errorf("%w: %d bytes over %s", err, len(data), mode)
	}

	e.mu.Lock()
	defer e.unlock()

	key := sessionKey{channel: channel, source: source, destination: destination, direction: Transmit}
	if broadcast && e.broadcastActive(channel) {
		return ErrBAMBusy
	}
	if _, busy := e.sessions[key]; busy {
		return ErrSessionBusy
	}
	if e.config.MaxSessions > 0 && len(e.sessions) >= e.config.MaxSessions {
		return ErrTooManySessions
	}

	now := e.now()
	s := &session{
		key:          key,
		mode:         mode,
		pgn:          pgn,
		priority:     priority,
		data:         append([]byte(nil), data...),
		totalBytes:   len(data),
		totalPackets: PacketCount(len(data)),
		nextPacket:   1,
		onComplete:   onComplete,
	}
	if mode == ModeBAM {
		s.windowEnd = s.totalPackets
	}
	s.setState(StateIdle, now, e.config.T3)
	e.sessions[key] = s
	e.stats.incrementSession(Transmit)
	e.logger.Debug("Transport: start %s", s.info())

	e.open(s, now)
	return nil
}

func (e *Engine) broadcastActive(channel uint8) bool {
	for key := range e.sessions {
		if key.channel == channel && key.direction == Transmit && key.destination == identifier.GlobalAddress {
			return true
		}
	}
	return false
}

// open sends the first frame of a transmit session.
func (e *Engine) open(s *session, now time.Time) {
	var frame []byte
	switch s.mode {
	case ModeTP:
		frame = tpRequestToSendFrame(uint16(s.totalBytes), uint8(s.totalPackets), s.pgn)
	case ModeBAM:
		frame = tpBroadcastFrame(uint16(s.totalBytes), uint8(s.totalPackets), s.pgn)
	case ModeETP:
		frame = etpRequestToSendFrame(uint32(s.totalBytes), s.pgn)
	}
	if !e.sendControl(s, frame) {
		return
	}
	if s.mode == ModeBAM {
		s.setState(StateAnnounced, now, e.config.T3)
		return
	}
	s.setState(StateRequestedToSend, now, e.config.T3)
}

// pump sends the data frames of the granted window until the window is
// done or the sender refuses a frame.
func (e *Engine) pump(s *session, now time.Time) {
	if s.state == StateClearToSendReceived {
		if s.dpoPending {
			packets := s.windowEnd - s.nextPacket + 1
			if !e.sendControl(s, etpDataPacketOffsetFrame(uint8(packets), s.dpoOffset, s.pgn)) {
				return
			}
			s.dpoPending = false
		}
		s.setState(StateSending, now, e.config.T3)
	}
	for s.nextPacket <= s.windowEnd {
		frame := dataFrame(s.data, s.nextPacket, s.windowSeq(s.nextPacket))
		if err := e.send(s, s.dataPGN(), frame); err != nil {
			return
		}
		e.stats.incrementTxData()
		if logger.FrameDebug() {
			e.logger.Debug("Transport: DT %d/%d to 0x%02X", s.nextPacket, s.totalPackets, s.key.destination)
		}
		s.nextPacket++
		s.touch(now)
	}
	if s.nextPacket > s.totalPackets {
		s.setState(StateWaitingForEndAck, now, e.config.T3)
		return
	}
	s.setState(StateRequestedToSend, now, e.config.T3)
}

// pumpBroadcast sends the next BAM data frame once the inter-frame delay passed.
func (e *Engine) pumpBroadcast(s *session, now time.Time) {
	if now.Sub(s.lastActivity) < e.config.BAMInterFrameDelay {
		return
	}
	frame := dataFrame(s.data, s.nextPacket, uint8(s.nextPacket))
	if err := e.send(s, s.dataPGN(), frame); err != nil {
		return
	}
	e.stats.incrementTxData()
	s.nextPacket++
	if s.nextPacket > s.totalPackets {
		e.finish(s, now)
		return
	}
	s.setState(StateSending, now, e.config.T3)
}

// grant sends the clear to send an Rx session owes its sender, or a hold
// frame while the session is held.
func (e *Engine) grant(s *session, now time.Time) {
	if s.held {
		var frame []byte
		if s.mode == ModeETP {
			frame = etpClearToSendFrame(0, s.nextPacket, s.pgn)
		} else {
			frame = tpClearToSendFrame(0, uint8(s.nextPacket), s.pgn)
		}
		if e.sendControl(s, frame) {
			s.setState(StateHolding, now, e.config.Th)
		}
		return
	}

	packets := uint32(e.config.PacketsPerCTS)
	if s.maxPerCTS != 0 && s.maxPerCTS < packets {
		packets = s.maxPerCTS
	}
	if remaining := s.totalPackets - s.nextPacket + 1; packets > remaining {
		packets = remaining
	}

	var frame []byte
	if s.mode == ModeETP {
		frame = etpClearToSendFrame(uint8(packets), s.nextPacket, s.pgn)
	} else {
		frame = tpClearToSendFrame(uint8(packets), uint8(s.nextPacket), s.pgn)
	}
	if !e.sendControl(s, frame) {
		return
	}
	s.windowEnd = s.nextPacket + packets - 1
	s.setState(StateClearToSendSent, now, e.config.T2)
}

// finish completes a session and queues its callbacks.
func (e *Engine) finish(s *session, now time.Time) {
	s.state = StateComplete
	delete(e.sessions, s.key)
	e.stats.incrementCompleted(s.key.direction, now)
	info := s.info()
	e.logger.Debug("Transport: complete %s", info)

	if s.key.direction == Transmit {
		if cb := s.onComplete; cb != nil {
			e.deferred = append(e.deferred, func() { cb(info, nil) })
		}
		return
	}
	if fn := e.onMessage; fn != nil {
		msg := Message{
			Channel:     s.key.channel,
			PGN:         s.pgn,
			Priority:    s.priority,
			Source:      s.key.source,
			Destination: s.key.destination,
			Mode:        s.mode,
			Data:        s.rx.bytes(),
		}
		e.deferred = append(e.deferred, func() { fn(msg) })
	}
}

// abort ends s. notify sends a connection abort to the peer; BAM never
// sends one. remote marks an abort received from the peer.
func (e *Engine) abort(s *session, reason AbortReason, notify, remote bool) {
	if notify && s.mode != ModeBAM {
		e.sendControl(s, abortFrame(reason, s.pgn))
	}
	s.state = StateAborted
	delete(e.sessions, s.key)
	e.stats.incrementAbort(reason, remote)
	info := s.info()
	e.logger.Warn("Transport: abort %s: %s", info, reason)

	if s.key.direction == Transmit {
		if cb := s.onComplete; cb != nil {
			err := s.abortError(reason, remote)
			e.deferred = append(e.deferred, func() { cb(info, err) })
		}
	}
}

// Abort ends the session in the given slot and reports whether one existed.
// Aborting an empty slot does nothing.
func (e *Engine) Abort(channel, source, destination uint8, direction Direction, reason AbortReason) bool {
	e.mu.Lock()
	defer e.unlock()

	s, ok := e.sessions[sessionKey{channel: channel, source: source, destination: destination, direction: direction}]
	if !ok {
		return false
	}
	e.abort(s, reason, true, false)
	return true
}

// AbortAddress ends every TP, BAM and ETP session this stack runs from
// address on channel without sending any frame, and returns how many
// ended. Use it when the address is lost to another control function.
func (e *Engine) AbortAddress(channel, address uint8) int {
	e.mu.Lock()
	defer e.unlock()

	n := 0
	for _, s := range e.sessions {
		if s.key.channel == channel && s.localAddress() == address {
			e.abort(s, AbortOther, false, false)
			n++
		}
	}
	return n
}

// Hold makes the receive session from source to destination send hold
// frames, repeated every Th, in place of its next clear to send. A window
// already granted is received first. The session stays open until Resume,
// Abort or an abort from the sender.
func (e *Engine) Hold(channel, source, destination uint8) error {
	e.mu.Lock()
	defer e.unlock()

	s, err := e.connection(channel, source, destination)
	if err != nil {
		return err
	}
	s.held = true
	if s.state == StateRequestReceived {
		e.grant(s, e.now())
	}
	return nil
}

// Resume ends a hold and grants the next window.
func (e *Engine) Resume(channel, source, destination uint8) error {
	e.mu.Lock()
	defer e.unlock()

	s, err := e.connection(channel, source, destination)
	if err != nil {
		return err
	}
	s.held = false
	if s.state == StateHolding {
		now := e.now()
		s.setState(StateRequestReceived, now, e.config.Tr)
		e.grant(s, now)
	}
	return nil
}

// connection returns the TP or ETP receive session in a slot
func (e *Engine) connection(channel, source, destination uint8) (*session, error) {
	s := e.sessions[sessionKey{channel: channel, source: source, destination: destination, direction: Receive}]
	if s == nil || s.mode == ModeBAM {
		return nil, ErrNoSession
	}
	return s, nil
}

// Update advances every session to now: timeouts, retries of frames the
// sender refused and paced BAM data.
func (e *Engine) Update(now time.Time) {
	e.mu.Lock()
	defer e.unlock()

	for _, s := range e.sessions {
		if s.state == StateHolding {
			if s.expired(now) {
				e.grant(s, now)
			}
			continue
		}
		if s.expired(now) {
			e.abort(s, AbortTimeout, s.state != StateIdle, false)
			continue
		}
		if s.mode == ModeBAM {
			if s.key.direction == Transmit {
				switch s.state {
				case StateIdle:
					e.open(s, now)
				case StateAnnounced, StateSending:
					e.pumpBroadcast(s, now)
				}
			}
			continue
		}
		switch s.state {
		case StateIdle:
			e.open(s, now)
		case StateClearToSendReceived, StateSending:
			e.pump(s, now)
		case StateRequestReceived:
			e.grant(s, now)
		}
	}
}

// ProcessFrame feeds a received TP or ETP frame to the engine. Frames
// that match no session return ErrNoSession; undecodable frames return
// ErrMalformedFrame. Neither affects other sessions.
func (e *Engine) ProcessFrame(channel uint8, id identifier.Identifier, data []byte) error {
	e.mu.Lock()
	defer e.unlock()

	now := e.now()
	var err error
	switch pgn := id.PGN(); pgn {
	case PGNTransportCM:
		err = e.processControl(channel, false, id, data, now)
	case PGNExtendedTransportCM:
		err = e.processControl(channel, true, id, data, now)
	case PGNTransportDT:
		err = e.processData(channel, false, id, data, now)
	case PGNExtendedTransportDT:
		err = e.processData(channel, true, id, data, now)
	default:
		err = fmt.Errorf("%w: PGN 0x%05X", ErrMalformedFrame, pgn)
	}
	if errors.Is(err, ErrMalformedFrame) {
		e.stats.incrementMalformed()
	}
	return err
}

func (e *Engine) processControl(channel uint8, extended bool, id identifier.Identifier, data []byte, now time.Time) error {
	f, err := parseControl(extended, data)
	if err != nil {
		return err
	}
	source, destination := id.SourceAddress(), id.DestinationAddress()
	mode := ModeTP
	if extended {
		mode = ModeETP
	}

	switch f.control {
	case tpBroadcastAnnounce:
		return e.receiveBroadcast(channel, id, f, now)
	case tpRequestToSend, etpRequestToSend:
		return e.receiveRequest(channel, mode, id, f, now)
	case tpClearToSend, etpClearToSend:
		s := e.lookup(channel, destination, source, Transmit, mode)
		if s == nil {
			return ErrNoSession
		}
		e.receiveClearToSend(s, f, now)
	case etpDataPacketOffset:
		s := e.lookup(channel, source, destination, Receive, mode)
		if s == nil {
			return ErrNoSession
		}
		e.receiveDataPacketOffset(s, f, now)
	case tpEndOfMessageAck, etpEndOfMessageAck:
		s := e.lookup(channel, destination, source, Transmit, mode)
		if s == nil {
			return ErrNoSession
		}
		if s.state != StateWaitingForEndAck {
			e.logger.Debug("Transport: end of message ack in %s ignored", s.state)
			return nil
		}
		e.finish(s, now)
	case connectionAbort:
		return e.receiveAbort(channel, mode, source, destination, f)
	}
	return nil
}

func (e *Engine) lookup(channel, source, destination uint8, direction Direction, mode Mode) *session {
	s := e.sessions[sessionKey{channel: channel, source: source, destination: destination, direction: direction}]
	if s == nil || s.mode != mode {
		return nil
	}
	return s
}

func (e *Engine) receiveBroadcast(channel uint8, id identifier.Identifier, f controlFrame, now time.Time) error {
	source, destination := id.SourceAddress(), id.DestinationAddress()
	total := int(f.totalBytes)
	if destination != identifier.GlobalAddress || total < MinMultiPacketLength || f.packets != PacketCount(total) {
		return fmt.Errorf("%w: BAM of %d bytes in %d packets to 0x%02X", ErrMalformedFrame, total, f.packets, destination)
	}

	key := sessionKey{channel: channel, source: source, destination: identifier.GlobalAddress, direction: Receive}
	if old, ok := e.sessions[key]; ok {
		// A new announcement from the same source replaces the old one
		e.abort(old, AbortOther, false, false)
	}
	if total > e.config.MaxReceiveLength || e.full() {
		e.stats.incrementRejected()
		return nil
	}

	s := &session{
		key:          key,
		mode:         ModeBAM,
		pgn:          f.pgn,
		priority:     id.Priority(),
		rx:           newReassembler(total),
		totalBytes:   total,
		totalPackets: f.packets,
		nextPacket:   1,
		windowEnd:    f.packets,
	}
	s.setState(StateReceiving, now, e.config.T1)
	e.sessions[key] = s
	e.stats.incrementSession(Receive)
	e.logger.Debug("Transport: start %s", s.info())
	return nil
}

func (e *Engine) full() bool {
	return e.config.MaxSessions > 0 && len(e.sessions) >= e.config.MaxSessions
}

func (e *Engine) receiveRequest(channel uint8, mode Mode, id identifier.Identifier, f controlFrame, now time.Time) error {
	source, destination := id.SourceAddress(), id.DestinationAddress()
	if destination == identifier.GlobalAddress {
		return fmt.Errorf("%w: request to send addressed to global", ErrMalformedFrame)
	}

	reject := func(reason AbortReason) error {
		e.stats.incrementRejected()
		e.logger.Info("Transport: reject %s request from 0x%02X for PGN 0x%05X: %s", mode, source, f.pgn, reason)
		pgn := PGNTransportCM
		if mode == ModeETP {
			pgn = PGNExtendedTransportCM
		}
		if err := e.sendRaw(channel, pgn, identifier.PriorityLowest7, source, destination, abortFrame(reason, f.pgn)); err != nil {
			e.logger.Warn("Transport: abort to 0x%02X not sent: %v", source, err)
		}
		return nil
	}

	key := sessionKey{channel: channel, source: source, destination: destination, direction: Receive}
	if _, busy := e.sessions[key]; busy {
		return reject(AbortAlreadyInSession)
	}

	total := int(f.totalBytes)
	limit := MaxTPLength
	if mode == ModeETP {
		limit = MaxETPLength
	}
	switch {
	case total < MinMultiPacketLength:
		return reject(AbortOther)
	case total > limit || total > e.config.MaxReceiveLength || e.full():
		return reject(AbortSystemResourcesNeeded)
	case mode == ModeTP && f.packets != PacketCount(total):
		return reject(AbortOther)
	}

	s := &session{
		key:          key,
		mode:         mode,
		pgn:          f.pgn,
		priority:     id.Priority(),
		rx:           newReassembler(total),
		totalBytes:   total,
		totalPackets: PacketCount(total),
		nextPacket:   1,
	}
	if mode == ModeTP && f.maxPerCTS != noPacketLimit {
		s.maxPerCTS = uint32(f.maxPerCTS)
	}
	s.setState(StateRequestReceived, now, e.config.Tr)
	e.sessions[key] = s
	e.stats.incrementSession(Receive)
	e.logger.Debug("Transport: start %s", s.info())

	e.grant(s, now)
	return nil
}

func (e *Engine) receiveClearToSend(s *session, f controlFrame, now time.Time) {
	switch s.state {
	case StateRequestedToSend, StateWaitingForEndAck:
	case StateClearToSendReceived, StateSending:
		e.abort(s, AbortClearToSendWhileTransferInProgress, true, false)
		return
	default:
		e.logger.Debug("Transport: clear to send in %s ignored", s.state)
		return
	}

	if f.pgn != s.pgn {
		if s.mode == ModeETP {
			e.abort(s, AbortUnexpectedClearToSendPGN, true, false)
		}
		return
	}
	if f.packets == 0 {
		// Hold: the receiver keeps the connection but wants no data yet
		s.setState(StateRequestedToSend, now, e.config.T4)
		return
	}
	end := f.nextPacket + f.packets - 1
	if f.nextPacket == 0 || end > s.totalPackets {
		if s.mode == ModeETP {
			e.abort(s, AbortClearToSendExceedsMessageSize, true, false)
			return
		}
		if f.nextPacket == 0 || f.nextPacket > s.totalPackets {
			e.abort(s, AbortOther, true, false)
			return
		}
		end = s.totalPackets
	}

	if perDPO := uint32(e.config.ETPMaxPacketsPerDPO); s.mode == ModeETP && end-f.nextPacket+1 > perDPO {
		end = f.nextPacket + perDPO - 1
	}
	s.nextPacket = f.nextPacket
	s.windowEnd = end
	if s.mode == ModeETP {
		s.dpoOffset = f.nextPacket - 1
		s.dpoPending = true
	}
	s.setState(StateClearToSendReceived, now, e.config.T3)
	e.pump(s, now)
}

func (e *Engine) receiveDataPacketOffset(s *session, f controlFrame, now time.Time) {
	switch {
	case s.state != StateClearToSendSent:
		e.abort(s, AbortUnexpectedDataPacketOffset, true, false)
	case f.pgn != s.pgn:
		e.abort(s, AbortUnexpectedDataPacketOffsetPGN, true, false)
	case f.packets == 0 || f.packets > s.windowEnd-s.nextPacket+1:
		e.abort(s, AbortDataPacketOffsetExceedsClearToSend, true, false)
	case f.offset != s.nextPacket-1:
		e.abort(s, AbortBadDataPacketOffset, true, false)
	default:
		s.dpoOffset = f.offset
		s.windowEnd = s.nextPacket + f.packets - 1
		s.setState(StateReceiving, now, e.config.T1)
	}
}

func (e *Engine) receiveAbort(channel uint8, mode Mode, source, destination uint8, f controlFrame) error {
	found := false
	for _, s := range []*session{
		e.lookup(channel, destination, source, Transmit, mode),
		e.lookup(channel, source, destination, Receive, mode),
	} {
		if s != nil && s.pgn == f.pgn {
			e.abort(s, f.abortReason, false, true)
			found = true
		}
	}
	if !found {
		return ErrNoSession
	}
	return nil
}

func (e *Engine) processData(channel uint8, extended bool, id identifier.Identifier, data []byte, now time.Time) error {
	if len(data) != FrameLength {
		return fmt.Errorf("%w: data frame length %d", ErrMalformedFrame, len(data))
	}
	key := sessionKey{channel: channel, source: id.SourceAddress(), destination: id.DestinationAddress(), direction: Receive}
	s := e.sessions[key]
	if s == nil || (s.mode == ModeETP) != extended {
		return ErrNoSession
	}
	e.stats.incrementRxData()

	switch s.state {
	case StateReceiving:
	case StateClearToSendSent:
		if s.mode == ModeETP {
			e.abort(s, AbortUnexpectedDataTransfer, true, false)
			return nil
		}
	default:
		e.abort(s, AbortUnexpectedDataTransfer, true, false)
		return nil
	}
	if s.nextPacket > s.windowEnd {
		e.abort(s, AbortUnexpectedDataTransfer, true, false)
		return nil
	}
	if reason := checkSequence(data[0], s.windowSeq(s.nextPacket)); reason != AbortReasonNone {
		e.abort(s, reason, true, false)
		return nil
	}

	s.rx.place(s.nextPacket, data[1:])
	if logger.FrameDebug() {
		e.logger.Debug("Transport: DT %d/%d from 0x%02X", s.nextPacket, s.totalPackets, s.key.source)
	}
	s.nextPacket++

	if s.rx.complete() {
		if s.mode != ModeBAM {
			var frame []byte
			if s.mode == ModeETP {
				frame = etpEndOfMessageFrame(uint32(s.totalBytes), s.pgn)
			} else {
				frame = tpEndOfMessageFrame(uint16(s.totalBytes), uint8(s.totalPackets), s.pgn)
			}
			e.sendControl(s, frame)
		}
		e.finish(s, now)
		return nil
	}
	if s.mode != ModeBAM && s.nextPacket > s.windowEnd {
		s.setState(StateRequestReceived, now, e.config.Tr)
		e.grant(s, now)
		return nil
	}
	s.setState(StateReceiving, now, e.config.T1)
	return nil
}

func (e *Engine) send(s *session, pgn uint32, data []byte) error {
	priority := identifier.PriorityLowest7
	if s.key.direction == Transmit {
		priority = s.priority
	}
	return e.sendRaw(s.key.channel, pgn, priority, s.remoteAddress(), s.localAddress(), data)
}

func (e *Engine) sendRaw(channel uint8, pgn uint32, priority identifier.Priority, destination, source uint8, data []byte) error {
	id := identifier.New(identifier.Extended, pgn, priority, destination, source)
	return e.sender.SendFrame(channel, id, data)
}

func (e *Engine) sendControl(s *session, frame []byte) bool {
	if err := e.send(s, s.controlPGN(), frame); err != nil {
		e.logger.Warn("Transport: control 0x%02X for %s not sent: %v", frame[0], s.info(), err)
		return false
	}
	return true
}

// Sessions returns a snapshot of every open session ordered by channel,
// source and destination.
func (e *Engine) Sessions() []SessionInfo {
	e.mu.Lock()
	defer e.unlock()

	out := make([]SessionInfo, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Destination != b.Destination {
			return a.Destination < b.Destination
		}
		return a.Direction < b.Direction
	})
	return out
}

// HasSession reports whether the slot is occupied.
func (e *Engine) HasSession(channel, source, destination uint8, direction Direction) bool {
	e.mu.Lock()
	defer e.unlock()
	_, ok := e.sessions[sessionKey{channel: channel, source: source, destination: destination, direction: direction}]
	return ok
}

// Stats returns a snapshot of the engine statistics.
func (e *Engine) Stats() Statistics {
	return e.stats.Snapshot()
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}
