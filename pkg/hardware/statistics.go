package hardware

import "sync/atomic"

// Statistics tracks interface-level frame counters
type Statistics struct {
	numFramesTx     uint64
	numFramesRx     uint64
	numTxDropped    uint64
	numReadErrors   uint64
	numWriteErrors  uint64
	numInvalidFrame uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// FrameTx increments transmitted frames
func (s *Statistics) FrameTx() {
	atomic.AddUint64(&s.numFramesTx, 1)
}

// FrameRx increments received frames
func (s *Statistics) FrameRx() {
	atomic.AddUint64(&s.numFramesRx, 1)
}

// TxDropped increments frames refused because a transmit queue was full
func (s *Statistics) TxDropped() {
	atomic.AddUint64(&s.numTxDropped, 1)
}

// ReadError increments driver read failures
func (s *Statistics) ReadError() {
	atomic.AddUint64(&s.numReadErrors, 1)
}

// WriteError increments driver write failures
func (s *Statistics) WriteError() {
	atomic.AddUint64(&s.numWriteErrors, 1)
}

// InvalidFrame increments frames rejected by validation
func (s *Statistics) InvalidFrame() {
	atomic.AddUint64(&s.numInvalidFrame, 1)
}

// GetFramesTx returns transmitted frames
func (s *Statistics) GetFramesTx() uint64 {
	return atomic.LoadUint64(&s.numFramesTx)
}

// GetFramesRx returns received frames
func (s *Statistics) GetFramesRx() uint64 {
	return atomic.LoadUint64(&s.numFramesRx)
}

// GetTxDropped returns frames refused by full queues
func (s *Statistics) GetTxDropped() uint64 {
	return atomic.LoadUint64(&s.numTxDropped)
}

// GetReadErrors returns driver read failures
func (s *Statistics) GetReadErrors() uint64 {
	return atomic.LoadUint64(&s.numReadErrors)
}

// GetWriteErrors returns driver write failures
func (s *Statistics) GetWriteErrors() uint64 {
	return atomic.LoadUint64(&s.numWriteErrors)
}

// GetInvalidFrames returns frames rejected by validation
func (s *Statistics) GetInvalidFrames() uint64 {
	return atomic.LoadUint64(&s.numInvalidFrame)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numFramesTx, 0)
	atomic.StoreUint64(&s.numFramesRx, 0)
	atomic.StoreUint64(&s.numTxDropped, 0)
	atomic.StoreUint64(&s.numReadErrors, 0)
	atomic.StoreUint64(&s.numWriteErrors, 0)
	atomic.StoreUint64(&s.numInvalidFrame, 0)
}
