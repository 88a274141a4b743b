package isobus

import "sync/atomic"

// Statistics counts traffic through the manager
type Statistics struct {
	framesReceived    atomic.Uint64
	framesSent        atomic.Uint64
	messagesDelivered atomic.Uint64
	messagesSent      atomic.Uint64
	sendRejected      atomic.Uint64
	droppedMalformed  atomic.Uint64
	droppedUnhandled  atomic.Uint64
	droppedNotForUs   atomic.Uint64
}

// StatisticsSnapshot is a copy of the counters
type StatisticsSnapshot struct {
	FramesReceived    uint64
	FramesSent        uint64
	MessagesDelivered uint64
	MessagesSent      uint64
	SendRejected      uint64
	DroppedMalformed  uint64 // undecodable frames
	DroppedUnhandled  uint64 // frames no session or handler wanted
	DroppedNotForUs   uint64 // transport frames addressed to other nodes
}

// Snapshot returns the current counters
func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		FramesReceived:    s.framesReceived.Load(),
		FramesSent:        s.framesSent.Load(),
		MessagesDelivered: s.messagesDelivered.Load(),
		MessagesSent:      s.messagesSent.Load(),
		SendRejected:      s.sendRejected.Load(),
		DroppedMalformed:  s.droppedMalformed.Load(),
		DroppedUnhandled:  s.droppedUnhandled.Load(),
		DroppedNotForUs:   s.droppedNotForUs.Load(),
	}
}

// Reset clears the counters
func (s *Statistics) Reset() {
	s.framesReceived.Store(0)
	s.framesSent.Store(0)
	s.messagesDelivered.Store(0)
	s.messagesSent.Store(0)
	s.sendRejected.Store(0)
	s.droppedMalformed.Store(0)
	s.droppedUnhandled.Store(0)
	s.droppedNotForUs.Store(0)
}
