package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"agisostack/isobus-go/pkg/identifier"
	"agisostack/isobus-go/pkg/internal/logger"
)

const (
	addrA uint8 = 0x80
	addrB uint8 = 0x81
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type sentFrame struct {
	channel uint8
	id      identifier.Identifier
	data    []byte
}

// queueSender records frames until the test delivers them.
type queueSender struct {
	queue   []sentFrame
	history []sentFrame
	fail    bool
}

func (q *queueSender) SendFrame(channel uint8, id identifier.Identifier, data []byte) error {
	if q.fail {
		return errors.New("transmit buffer full")
	}
	f := sentFrame{channel: channel, id: id, data: append([]byte(nil), data...)}
	q.queue = append(q.queue, f)
	q.history = append(q.history, f)
	return nil
}

func (q *queueSender) take() []sentFrame {
	f := q.queue
	q.queue = nil
	return f
}

// countControl counts history frames on pgn with the given control byte.
func (q *queueSender) countControl(pgn uint32, control uint8) int {
	n := 0
	for _, f := range q.history {
		if f.id.PGN() == pgn && f.data[0] == control {
			n++
		}
	}
	return n
}

func (q *queueSender) countPGN(pgn uint32) int {
	n := 0
	for _, f := range q.history {
		if f.id.PGN() == pgn {
			n++
		}
	}
	return n
}

type link struct {
	a, b       *Engine
	aOut, bOut *queueSender
	clock      *fakeClock
	received   []Message
}

func newLink(t *testing.T) *link {
	t.Helper()
	l := &link{
		aOut:  &queueSender{},
		bOut:  &queueSender{},
		clock: &fakeClock{t: time.Unix(1000, 0)},
	}
	var err error
	l.a, err = NewEngine(DefaultConfig(), l.aOut, logger.NewNoOpLogger(), WithClock(l.clock.Now))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	l.b, err = NewEngine(DefaultConfig(), l.bOut, logger.NewNoOpLogger(), WithClock(l.clock.Now),
		WithMessageHandler(func(m Message) { l.received = append(l.received, m) }))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return l
}

// deliver exchanges queued frames until both sides are quiet.
func (l *link) deliver() {
	for {
		fromA, fromB := l.aOut.take(), l.bOut.take()
		if len(fromA) == 0 && len(fromB) == 0 {
			return
		}
		for _, f := range fromA {
			_ = l.b.ProcessFrame(f.channel, f.id, f.data)
		}
		for _, f := range fromB {
			_ = l.a.ProcessFrame(f.channel, f.id, f.data)
		}
	}
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

type result struct {
	done bool
	info SessionInfo
	err  error
}

func (r *result) callback() CompleteFunc {
	return func(info SessionInfo, err error) {
		r.done = true
		r.info = info
		r.err = err
	}
}

func cmID(extended bool, src, dst uint8) identifier.Identifier {
	pgn := PGNTransportCM
	if extended {
		pgn = PGNExtendedTransportCM
	}
	return identifier.New(identifier.Extended, pgn, identifier.PriorityLowest7, dst, src)
}

func dtID(src, dst uint8) identifier.Identifier {
	return identifier.New(identifier.Extended, PGNTransportDT, identifier.PriorityLowest7, dst, src)
}

func TestTPRoundTripMaximumLength(t *testing.T) {
	l := newLink(t)
	data := payload(MaxTPLength)
	var res result

	if err := l.a.StartTx(0, 0xEF00, data, addrA, addrB, identifier.PriorityLowest7, res.callback()); err != nil {
		t.Fatalf("StartTx failed: %v", err)
	}
	l.deliver()

	if !res.done || res.err != nil {
		t.Fatalf("transmit result = %+v, want success", res)
	}
	if len(l.received) != 1 {
		t.Fatalf("received %d messages, want 1", len(l.received))
	}
	msg := l.received[0]
	if !bytes.Equal(msg.Data, data) {
		t.Error("reassembled data mismatch")
	}
	if msg.PGN != 0xEF00 || msg.Source != addrA || msg.Destination != addrB || msg.Mode != ModeTP {
		t.Errorf("message = PGN 0x%X %02X->%02X %s", msg.PGN, msg.Source, msg.Destination, msg.Mode)
	}

	if got := l.aOut.countControl(PGNTransportCM, tpRequestToSend); got != 1 {
		t.Errorf("RTS frames = %d, want 1", got)
	}
	if got := l.aOut.countPGN(PGNTransportDT); got != 255 {
		t.Errorf("DT frames = %d, want 255", got)
	}
	if got := l.bOut.countControl(PGNTransportCM, tpClearToSend); got != 16 {
		t.Errorf("CTS frames = %d, want 16", got)
	}
	if got := l.bOut.countControl(PGNTransportCM, tpEndOfMessageAck); got != 1 {
		t.Errorf("EoMA frames = %d, want 1", got)
	}
	if n := len(l.a.Sessions()) + len(l.b.Sessions()); n != 0 {
		t.Errorf("%d sessions left open", n)
	}
	if s := l.b.Stats(); s.RxCompleted != 1 || s.RxDataFrames != 255 {
		t.Errorf("receiver stats = %+v", s)
	}
}

func TestETPSelectedAboveTPLimit(t *testing.T) {
	l := newLink(t)
	data := payload(MaxTPLength + 1)
	var res result

	if err := l.a.StartTx(0, 0xEF00, data, addrA, addrB, identifier.PriorityLowest7, res.callback()); err != nil {
		t.Fatalf("StartTx failed: %v", err)
	}
	first := l.aOut.queue[0]
	if first.id.PGN() != PGNExtendedTransportCM || first.data[0] != etpRequestToSend {
		t.Fatalf("first frame PGN 0x%X control 0x%02X, want ETP RTS", first.id.PGN(), first.data[0])
	}
	l.deliver()

	if !res.done || res.err != nil {
		t.Fatalf("transmit result = %+v, want success", res)
	}
	if len(l.received) != 1 || !bytes.Equal(l.received[0].Data, data) {
		t.Fatal("ETP message not reassembled")
	}
	if l.received[0].Mode != ModeETP {
		t.Errorf("mode = %s, want ETP", l.received[0].Mode)
	}
	if got := l.aOut.countControl(PGNExtendedTransportCM, etpDataPacketOffset); got != 16 {
		t.Errorf("DPO frames = %d, want 16", got)
	}
	if got := l.aOut.countPGN(PGNExtendedTransportDT); got != 256 {
		t.Errorf("ETP DT frames = %d, want 256", got)
	}
	if l.aOut.countPGN(PGNTransportDT) != 0 {
		t.Error("ETP session sent TP data frames")
	}
}

func TestBroadcastPacingAndDelivery(t *testing.T) {
	l := newLink(t)
	data := payload(100)
	var res result

	if err := l.a.StartTx(0, 0xFEEC, data, addrA, identifier.GlobalAddress, identifier.PriorityDefault6, res.callback()); err != nil {
		t.Fatalf("StartTx failed: %v", err)
	}
	l.deliver()

	l.a.Update(l.clock.Now())
	if got := len(l.aOut.queue); got != 0 {
		t.Fatalf("sent %d data frames before the inter-frame delay", got)
	}

	for i := 0; i < 15; i++ {
		l.clock.Advance(50 * time.Millisecond)
		l.a.Update(l.clock.Now())
		if got := len(l.aOut.queue); got != 1 {
			t.Fatalf("tick %d sent %d frames, want 1", i, got)
		}
		l.deliver()
	}

	if !res.done || res.err != nil {
		t.Fatalf("transmit result = %+v, want success", res)
	}
	if len(l.received) != 1 || !bytes.Equal(l.received[0].Data, data) {
		t.Fatal("BAM message not reassembled")
	}
	if l.received[0].Destination != identifier.GlobalAddress {
		t.Errorf("destination = 0x%02X, want global", l.received[0].Destination)
	}
	if l.bOut.countPGN(PGNTransportCM) != 0 {
		t.Error("BAM receiver must not answer")
	}
}

func TestOneBroadcastPerChannel(t *testing.T) {
	l := newLink(t)
	data := payload(20)

	if err := l.a.StartTx(0, 0xFEEC, data, addrA, identifier.GlobalAddress, identifier.PriorityDefault6, nil); err != nil {
		t.Fatalf("first BAM failed: %v", err)
	}
	if err := l.a.StartTx(0, 0xFEEC, data, 0x90, identifier.GlobalAddress, identifier.PriorityDefault6, nil); !errors.Is(err, ErrBAMBusy) {
		t.Errorf("second BAM error = %v, want %v", err, ErrBAMBusy)
	}
	if err := l.a.StartTx(1, 0xFEEC, data, addrA, identifier.GlobalAddress, identifier.PriorityDefault6, nil); err != nil {
		t.Errorf("BAM on another channel failed: %v", err)
	}
	if err := l.a.StartTx(0, 0xEF00, data, addrA, addrB, identifier.PriorityDefault6, nil); err != nil {
		t.Errorf("TP beside BAM failed: %v", err)
	}
}

func TestStartTxValidation(t *testing.T) {
	tests := []struct {
		name string
		len  int
		src  uint8
		dst  uint8
		want error
	}{
		{"single frame", 8, addrA, addrB, ErrMessageTooShort},
		{"BAM too long", MaxTPLength + 1, addrA, identifier.GlobalAddress, ErrMessageTooLong},
		{"null source", 20, identifier.NullAddress, addrB, ErrInvalidAddress},
		{"null destination", 20, addrA, identifier.NullAddress, ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLink(t)
			err := l.a.StartTx(0, 0xEF00, make([]byte, tt.len), tt.src, tt.dst, identifier.PriorityDefault6, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("StartTx error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSlotBusy(t *testing.T) {
	l := newLink(t)
	if err := l.a.StartTx(0, 0xEF00, payload(20), addrA, addrB, identifier.PriorityDefault6, nil); err != nil {
		t.Fatalf("StartTx failed: %v", err)
	}
	err := l.a.StartTx(0, 0xEF01, payload(2000), addrA, addrB, identifier.PriorityDefault6, nil)
	if !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second session error = %v, want %v", err, ErrSessionBusy)
	}
}

func TestDuplicateRequestRejected(t *testing.T) {
	l := newLink(t)
	rts := tpRequestToSendFrame(20, 3, 0xEF00)

	if err := l.b.ProcessFrame(0, cmID(false, addrA, addrB), rts); err != nil {
		t.Fatalf("first RTS failed: %v", err)
	}
	l.bOut.take()
	if err := l.b.ProcessFrame(0, cmID(false, addrA, addrB), rts); err != nil {
		t.Fatalf("second RTS failed: %v", err)
	}

	out := l.bOut.take()
	if len(out) != 1 || out[0].data[0] != connectionAbort || AbortReason(out[0].data[1]) != AbortAlreadyInSession {
		t.Fatalf("reply = %+v, want abort AlreadyInSession", out)
	}
	if out[0].id.DestinationAddress() != addrA || out[0].id.SourceAddress() != addrB {
		t.Errorf("abort addressed %02X->%02X", out[0].id.SourceAddress(), out[0].id.DestinationAddress())
	}
	if !l.b.HasSession(0, addrA, addrB, Receive) {
		t.Error("original session should survive a duplicate request")
	}
}

func TestReceiveTimeoutFreesSlot(t *testing.T) {
	l := newLink(t)
	rts := tpRequestToSendFrame(20, 3, 0xEF00)
	_ = l.b.ProcessFrame(0, cmID(false, addrA, addrB), rts)
	l.bOut.take()

	l.clock.Advance(DefaultConfig().T2 - time.Millisecond)
	l.b.Update(l.clock.Now())
	if !l.b.HasSession(0, addrA, addrB, Receive) {
		t.Fatal("session aborted before T2")
	}

	l.clock.Advance(2 * time.Millisecond)
	l.b.Update(l.clock.Now())
	if l.b.HasSession(0, addrA, addrB, Receive) {
		t.Fatal("session not aborted after T2")
	}
	out := l.bOut.take()
	if len(out) != 1 || out[0].data[0] != connectionAbort || AbortReason(out[0].data[1]) != AbortTimeout {
		t.Fatalf("frames = %+v, want abort Timeout", out)
	}

	if err := l.b.ProcessFrame(0, cmID(false, addrA, addrB), rts); err != nil {
		t.Fatalf("new RTS failed: %v", err)
	}
	if !l.b.HasSession(0, addrA, addrB, Receive) {
		t.Error("slot not reusable after timeout")
	}
	if s := l.b.Stats(); s.TimeoutErrors != 1 {
		t.Errorf("TimeoutErrors = %d, want 1", s.TimeoutErrors)
	}
}

func TestSequenceErrors(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint8
		want AbortReason
	}{
		{"skipped packet", []uint8{2}, AbortBadSequenceNumber},
		{"repeated packet", []uint8{1, 1}, AbortDuplicateSequenceNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLink(t)
			_ = l.b.ProcessFrame(0, cmID(false, addrA, addrB), tpRequestToSendFrame(20, 3, 0xEF00))
			l.bOut.take()

			for _, seq := range tt.seqs {
				frame := []byte{seq, 1, 2, 3, 4, 5, 6, 7}
				_ = l.b.ProcessFrame(0, dtID(addrA, addrB), frame)
			}

			out := l.bOut.take()
			if len(out) != 1 || out[0].data[0] != connectionAbort {
				t.Fatalf("frames = %+v, want one abort", out)
			}
			if got := AbortReason(out[0].data[1]); got != tt.want {
				t.Errorf("abort reason = %s, want %s", got, tt.want)
			}
			if len(l.received) != 0 {
				t.Error("aborted session delivered a message")
			}
		})
	}
}

func TestTransmitTimeoutWithoutClearToSend(t *testing.T) {
	l := newLink(t)
	var res result
	_ = l.a.StartTx(0, 0xEF00, payload(20), addrA, addrB, identifier.PriorityDefault6, res.callback())
	l.aOut.take()

	l.clock.Advance(DefaultConfig().T3 + time.Millisecond)
	l.a.Update(l.clock.Now())

	if !res.done {
		t.Fatal("completion not called")
	}
	var abortErr *AbortError
	if !errors.As(res.err, &abortErr) || !abortErr.IsTimeout() || abortErr.Remote {
		t.Fatalf("err = %v, want local timeout", res.err)
	}
	if got := l.aOut.countControl(PGNTransportCM, connectionAbort); got != 1 {
		t.Errorf("abort frames = %d, want 1", got)
	}
}

func TestRemoteAbort(t *testing.T) {
	l := newLink(t)
	var res result
	_ = l.a.StartTx(0, 0xEF00, payload(20), addrA, addrB, identifier.PriorityDefault6, res.callback())

	err := l.a.ProcessFrame(0, cmID(false, addrB, addrA), abortFrame(AbortSystemResourcesNeeded, 0xEF00))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	var abortErr *AbortError
	if !errors.As(res.err, &abortErr) || !abortErr.Remote || abortErr.Reason != AbortSystemResourcesNeeded {
		t.Fatalf("err = %v, want remote SystemResourcesNeeded", res.err)
	}
	if l.a.HasSession(0, addrA, addrB, Transmit) {
		t.Error("slot still occupied")
	}

	if err := l.a.ProcessFrame(0, cmID(false, addrB, addrA), abortFrame(AbortOther, 0xEF00)); !errors.Is(err, ErrNoSession) {
		t.Errorf("abort without session error = %v, want %v", err, ErrNoSession)
	}
}

func TestLocalAbortIsIdempotent(t *testing.T) {
	l := newLink(t)
	var res result
	_ = l.a.StartTx(0, 0xEF00, payload(20), addrA, addrB, identifier.PriorityDefault6, res.callback())

	if !l.a.Abort(0, addrA, addrB, Transmit, AbortOther) {
		t.Fatal("Abort found no session")
	}
	if l.a.Abort(0, addrA, addrB, Transmit, AbortOther) {
		t.Error("second Abort reported a session")
	}
	if res.err == nil {
		t.Error("completion should carry the abort")
	}
}

func TestTransmitResumesWhenSenderRecovers(t *testing.T) {
	l := newLink(t)
	var res result
	_ = l.a.StartTx(0, 0xEF00, payload(50), addrA, addrB, identifier.PriorityDefault6, res.callback())
	l.aOut.take()

	l.aOut.fail = true
	_ = l.a.ProcessFrame(0, cmID(false, addrB, addrA), tpClearToSendFrame(8, 1, 0xEF00))
	if sessions := l.a.Sessions(); len(sessions) != 1 || sessions[0].State != StateSending {
		t.Fatalf("sessions = %v, want one Sending", sessions)
	}

	l.aOut.fail = false
	l.a.Update(l.clock.Now())
	if got := len(l.aOut.take()); got != 8 {
		t.Errorf("resumed %d data frames, want 8", got)
	}
	if sessions := l.a.Sessions(); sessions[0].State != StateWaitingForEndAck {
		t.Errorf("state = %s, want WaitingForEndAck", sessions[0].State)
	}
}

func TestClearToSendHold(t *testing.T) {
	l := newLink(t)
	var res result
	_ = l.a.StartTx(0, 0xEF00, payload(50), addrA, addrB, identifier.PriorityDefault6, res.callback())
	_ = l.a.ProcessFrame(0, cmID(false, addrB, addrA), tpClearToSendFrame(0, 0, 0xEF00))

	l.clock.Advance(time.Second)
	l.a.Update(l.clock.Now())
	if res.done {
		t.Fatal("hold aborted before T4")
	}
	if l.aOut.countPGN(PGNTransportDT) != 0 {
		t.Error("data sent during hold")
	}

	l.clock.Advance(100 * time.Millisecond)
	l.a.Update(l.clock.Now())
	if !res.done || res.err == nil {
		t.Error("hold not aborted after T4")
	}
}

func TestClearToSendDuringBurstAborts(t *testing.T) {
	l := newLink(t)
	_ = l.a.StartTx(0, 0xEF00, payload(50), addrA, addrB, identifier.PriorityDefault6, nil)
	l.aOut.take()
	l.aOut.fail = true
	_ = l.a.ProcessFrame(0, cmID(false, addrB, addrA), tpClearToSendFrame(8, 1, 0xEF00))
	l.aOut.fail = false

	_ = l.a.ProcessFrame(0, cmID(false, addrB, addrA), tpClearToSendFrame(8, 1, 0xEF00))
	out := l.aOut.take()
	if len(out) != 1 || AbortReason(out[0].data[1]) != AbortClearToSendWhileTransferInProgress {
		t.Fatalf("frames = %+v, want abort ClearToSendWhileTransferInProgress", out)
	}
}

func TestMalformedFramesCounted(t *testing.T) {
	l := newLink(t)

	if err := l.b.ProcessFrame(0, cmID(false, addrA, addrB), []byte{tpRequestToSend, 20}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("short frame error = %v, want %v", err, ErrMalformedFrame)
	}
	if err := l.b.ProcessFrame(0, cmID(false, addrA, addrB), []byte{0x42, 0, 0, 0, 0, 0, 0xEF, 0}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("unknown control error = %v, want %v", err, ErrMalformedFrame)
	}
	if err := l.b.ProcessFrame(0, dtID(addrA, addrB), []byte{1, 2, 3, 4, 5, 6, 7, 8}); !errors.Is(err, ErrNoSession) {
		t.Errorf("stray data error = %v, want %v", err, ErrNoSession)
	}
	if got := l.b.Stats().MalformedFrames; got != 2 {
		t.Errorf("MalformedFrames = %d, want 2", got)
	}
}

func TestOversizedRequestRejected(t *testing.T) {
	l := newLink(t)
	cfg := DefaultConfig()
	cfg.MaxReceiveLength = 1000
	var err error
	l.b, err = NewEngine(cfg, l.bOut, nil, WithClock(l.clock.Now))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	_ = l.b.ProcessFrame(0, cmID(true, addrA, addrB), etpRequestToSendFrame(5000, 0xEF00))
	out := l.bOut.take()
	if len(out) != 1 || AbortReason(out[0].data[1]) != AbortSystemResourcesNeeded {
		t.Fatalf("frames = %+v, want abort SystemResourcesNeeded", out)
	}
	if out[0].id.PGN() != PGNExtendedTransportCM {
		t.Errorf("abort PGN = 0x%X, want ETP.CM", out[0].id.PGN())
	}
}

func TestOversizedRequestReasons(t *testing.T) {
	tests := []struct {
		name     string
		extended bool
		frame    []byte
		want     AbortReason
	}{
		{"TP over maximum", false, tpRequestToSendFrame(MaxTPLength+1, 0, 0xEF00), AbortSystemResourcesNeeded},
		{"ETP over maximum", true, etpRequestToSendFrame(MaxETPLength+1, 0xEF00), AbortSystemResourcesNeeded},
		{"TP below minimum", false, tpRequestToSendFrame(8, 2, 0xEF00), AbortOther},
		{"TP packet count mismatch", false, tpRequestToSendFrame(20, 4, 0xEF00), AbortOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLink(t)
			_ = l.b.ProcessFrame(0, cmID(tt.extended, addrA, addrB), tt.frame)
			out := l.bOut.take()
			if len(out) != 1 || out[0].data[0] != connectionAbort || AbortReason(out[0].data[1]) != tt.want {
				t.Fatalf("frames = %+v, want abort %s", out, tt.want)
			}
			if l.b.HasSession(0, addrA, addrB, Receive) {
				t.Error("rejected request opened a session")
			}
		})
	}
}

func TestAbortAddressEndsLocalSessions(t *testing.T) {
	l := newLink(t)
	var tp, bam, other result
	if err := l.a.StartTx(0, 0xEF00, payload(100), addrA, addrB, identifier.PriorityDefault6, tp.callback()); err != nil {
		t.Fatalf("TP StartTx failed: %v", err)
	}
	if err := l.a.StartTx(0, 0xFEEB, payload(100), addrA, identifier.GlobalAddress, identifier.PriorityDefault6, bam.callback()); err != nil {
		t.Fatalf("BAM StartTx failed: %v", err)
	}
	if err := l.a.StartTx(0, 0xEF00, payload(100), 0x82, addrB, identifier.PriorityDefault6, other.callback()); err != nil {
		t.Fatalf("StartTx from 0x82 failed: %v", err)
	}
	_ = l.a.ProcessFrame(0, cmID(false, 0x90, addrA), tpRequestToSendFrame(20, 3, 0xEF00))
	l.aOut.take()

	if n := l.a.AbortAddress(0, addrA); n != 3 {
		t.Fatalf("AbortAddress() = %d, want 3", n)
	}
	if out := l.aOut.take(); len(out) != 0 {
		t.Errorf("AbortAddress sent %d frames", len(out))
	}
	for name, r := range map[string]*result{"TP": &tp, "BAM": &bam} {
		var abort *AbortError
		if !r.done || !errors.As(r.err, &abort) || abort.Reason != AbortOther {
			t.Errorf("%s result = %+v, want abort Other", name, r)
		}
	}
	if l.a.HasSession(0, 0x90, addrA, Receive) {
		t.Error("receive session to the lost address survived")
	}
	if other.done || !l.a.HasSession(0, 0x82, addrB, Transmit) {
		t.Error("session from another address was ended")
	}

	for i := 0; i < 100; i++ {
		l.clock.Advance(50 * time.Millisecond)
		l.a.Update(l.clock.Now())
	}
	for _, f := range l.aOut.take() {
		if f.id.SourceAddress() == addrA {
			t.Errorf("frame %s sent from the lost address", f.id)
		}
	}
}

func TestReceiverGivesUpWhenClearToSendRefused(t *testing.T) {
	l := newLink(t)
	l.bOut.fail = true
	_ = l.b.ProcessFrame(0, cmID(false, addrA, addrB), tpRequestToSendFrame(20, 3, 0xEF00))

	l.clock.Advance(DefaultConfig().Tr - 10*time.Millisecond)
	l.b.Update(l.clock.Now())
	if !l.b.HasSession(0, addrA, addrB, Receive) {
		t.Fatal("session aborted before Tr")
	}

	l.clock.Advance(20 * time.Millisecond)
	l.b.Update(l.clock.Now())
	if l.b.HasSession(0, addrA, addrB, Receive) {
		t.Fatal("session still open after Tr without a clear to send")
	}
	if l.bOut.countControl(PGNTransportCM, tpClearToSend) != 0 {
		t.Error("refused clear to send recorded as sent")
	}
}

// holds counts clear to send frames for zero packets
func (q *queueSender) holds() int {
	n := 0
	for _, f := range q.history {
		if f.id.PGN() == PGNTransportCM && f.data[0] == tpClearToSend && f.data[1] == 0 {
			n++
		}
	}
	return n
}

func TestReceiveHoldAndResume(t *testing.T) {
	l := newLink(t)
	cfg := DefaultConfig()
	cfg.PacketsPerCTS = 2
	var err error
	l.b, err = NewEngine(cfg, l.bOut, nil, WithClock(l.clock.Now),
		WithMessageHandler(func(m Message) { l.received = append(l.received, m) }))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := l.b.Hold(0, addrA, addrB); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Hold() without session error = %v, want %v", err, ErrNoSession)
	}

	data := payload(50)
	var res result
	_ = l.a.StartTx(0, 0xEF00, data, addrA, addrB, identifier.PriorityDefault6, res.callback())
	for _, f := range l.aOut.take() {
		_ = l.b.ProcessFrame(f.channel, f.id, f.data)
	}
	if err := l.b.Hold(0, addrA, addrB); err != nil {
		t.Fatalf("Hold() error = %v", err)
	}
	l.deliver()

	if got := l.bOut.holds(); got != 1 {
		t.Fatalf("hold frames = %d, want 1 after the first window", got)
	}
	last := l.bOut.history[len(l.bOut.history)-1]
	if last.data[2] != 3 {
		t.Errorf("hold next packet = %d, want 3", last.data[2])
	}

	for i := 0; i < 3; i++ {
		l.clock.Advance(DefaultConfig().Th + 10*time.Millisecond)
		l.b.Update(l.clock.Now())
		l.deliver()
		l.a.Update(l.clock.Now())
	}
	if got := l.bOut.holds(); got != 4 {
		t.Errorf("hold frames = %d, want 4 after three refresh intervals", got)
	}
	if res.done {
		t.Fatalf("held transfer ended: %v", res.err)
	}

	if err := l.b.Resume(0, addrA, addrB); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	l.deliver()
	if !res.done || res.err != nil {
		t.Fatalf("transmit result = %+v, want success", res)
	}
	if len(l.received) != 1 || !bytes.Equal(l.received[0].Data, data) {
		t.Fatal("message not reassembled after resume")
	}
}

func TestDataPacketOffsetCap(t *testing.T) {
	l := newLink(t)
	cfg := DefaultConfig()
	cfg.ETPMaxPacketsPerDPO = 4
	var err error
	l.a, err = NewEngine(cfg, l.aOut, nil, WithClock(l.clock.Now))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	data := payload(MaxTPLength + 1)
	var res result
	_ = l.a.StartTx(0, 0xEF00, data, addrA, addrB, identifier.PriorityLowest7, res.callback())
	l.deliver()

	if !res.done || res.err != nil {
		t.Fatalf("transmit result = %+v, want success", res)
	}
	if len(l.received) != 1 || !bytes.Equal(l.received[0].Data, data) {
		t.Fatal("ETP message not reassembled")
	}
	if got := l.aOut.countControl(PGNExtendedTransportCM, etpDataPacketOffset); got != 64 {
		t.Errorf("DPO frames = %d, want 64", got)
	}
}

func TestSessionInfoProgress(t *testing.T) {
	info := SessionInfo{TotalBytes: 200, BytesTransferred: 50}
	if got := info.Progress(); got != 0.25 {
		t.Errorf("Progress = %v, want 0.25", got)
	}
	if got := (SessionInfo{}).Progress(); got != 0 {
		t.Errorf("empty Progress = %v, want 0", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"zero T1", func(c *Config) { c.T1 = 0 }, false},
		{"BAM delay too short", func(c *Config) { c.BAMInterFrameDelay = time.Millisecond }, false},
		{"zero window", func(c *Config) { c.PacketsPerCTS = 0 }, false},
		{"tiny receive limit", func(c *Config) { c.MaxReceiveLength = 8 }, false},
		{"zero Tr", func(c *Config) { c.Tr = 0 }, false},
		{"Th not below T4", func(c *Config) { c.Th = c.T4 }, false},
		{"zero packets per DPO", func(c *Config) { c.ETPMaxPacketsPerDPO = 0 }, false},
		{"negative session limit", func(c *Config) { c.MaxSessions = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, want valid %v", err, tt.valid)
			}
		})
	}
}
