package transport

import (
	"sync/atomic"
	"time"
)

// Statistics tracks transport session metrics
type Statistics struct {
	// Session counts
	TxSessions uint64
	RxSessions uint64

	// Completion counts
	TxCompleted uint64
	RxCompleted uint64

	// Frame counts
	TxDataFrames uint64
	RxDataFrames uint64

	// Error counts
	Aborts           uint64
	RemoteAborts     uint64
	TimeoutErrors    uint64
	SequenceErrors   uint64
	RejectedSessions uint64
	MalformedFrames  uint64

	// Timing (stored as Unix nano for atomic operations)
	lastTxTimeNano int64
	lastRxTimeNano int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) incrementSession(d Direction) {
	if d == Transmit {
		atomic.AddUint64(&s.TxSessions, 1)
	} else {
		atomic.AddUint64(&s.RxSessions, 1)
	}
}

func (s *Statistics) incrementCompleted(d Direction, now time.Time) {
	if d == Transmit {
		atomic.AddUint64(&s.TxCompleted, 1)
		atomic.StoreInt64(&s.lastTxTimeNano, now.UnixNano())
	} else {
		atomic.AddUint64(&s.RxCompleted, 1)
		atomic.StoreInt64(&s.lastRxTimeNano, now.UnixNano())
	}
}

func (s *Statistics) incrementAbort(reason AbortReason, remote bool) {
	atomic.AddUint64(&s.Aborts, 1)
	if remote {
		atomic.AddUint64(&s.RemoteAborts, 1)
	}
	switch reason {
	case AbortTimeout:
		atomic.AddUint64(&s.TimeoutErrors, 1)
	case AbortBadSequenceNumber, AbortDuplicateSequenceNumber:
		atomic.AddUint64(&s.SequenceErrors, 1)
	}
}

func (s *Statistics) incrementTxData() {
	atomic.AddUint64(&s.TxDataFrames, 1)
}

func (s *Statistics) incrementRxData() {
	atomic.AddUint64(&s.RxDataFrames, 1)
}

func (s *Statistics) incrementRejected() {
	atomic.AddUint64(&s.RejectedSessions, 1)
}

func (s *Statistics) incrementMalformed() {
	atomic.AddUint64(&s.MalformedFrames, 1)
}

// Snapshot returns a consistent-enough copy for reporting
func (s *Statistics) Snapshot() Statistics {
	return Statistics{
		TxSessions:       atomic.LoadUint64(&s.TxSessions),
		RxSessions:       atomic.LoadUint64(&s.RxSessions),
		TxCompleted:      atomic.LoadUint64(&s.TxCompleted),
		RxCompleted:      atomic.LoadUint64(&s.RxCompleted),
		TxDataFrames:     atomic.LoadUint64(&s.TxDataFrames),
		RxDataFrames:     atomic.LoadUint64(&s.RxDataFrames),
		Aborts:           atomic.LoadUint64(&s.Aborts),
		RemoteAborts:     atomic.LoadUint64(&s.RemoteAborts),
		TimeoutErrors:    atomic.LoadUint64(&s.TimeoutErrors),
		SequenceErrors:   atomic.LoadUint64(&s.SequenceErrors),
		RejectedSessions: atomic.LoadUint64(&s.RejectedSessions),
		MalformedFrames:  atomic.LoadUint64(&s.MalformedFrames),
		lastTxTimeNano:   atomic.LoadInt64(&s.lastTxTimeNano),
		lastRxTimeNano:   atomic.LoadInt64(&s.lastRxTimeNano),
	}
}

// GetLastTxTime returns when the last transmit session completed
func (s *Statistics) GetLastTxTime() time.Time {
	nano := atomic.LoadInt64(&s.lastTxTimeNano)
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// GetLastRxTime returns when the last receive session completed
func (s *Statistics) GetLastRxTime() time.Time {
	nano := atomic.LoadInt64(&s.lastRxTimeNano)
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Reset resets all statistics to zero
func (s *Statistics) Reset() {
	for _, p := range []*uint64{
		&s.TxSessions, &s.RxSessions, &s.TxCompleted, &s.RxCompleted,
		&s.TxDataFrames, &s.RxDataFrames, &s.Aborts, &s.RemoteAborts,
		&s.TimeoutErrors, &s.SequenceErrors, &s.RejectedSessions, &s.MalformedFrames,
	} {
		atomic.StoreUint64(p, 0)
	}
	atomic.StoreInt64(&s.lastTxTimeNano, 0)
	atomic.StoreInt64(&s.lastRxTimeNano, 0)
}
