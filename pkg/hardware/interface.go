package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agisostack/isobus-go/pkg/internal/logger"
)

var (
	ErrInterfaceRunning  = errors.New("hardware interface is running")
	ErrInterfaceStopped  = errors.New("hardware interface is stopped")
	ErrNoDriver          = errors.New("no driver assigned to channel")
	ErrChannelOutOfRange = errors.New("channel index out of range")
	ErrQueueFull         = errors.New("transmit queue full")
)

// DefaultQueueSize is the per-channel transmit queue length
const DefaultQueueSize = 256

// readRetryDelay spaces read attempts after a driver error
const readRetryDelay = 10 * time.Millisecond

// FrameHandler receives every frame read from any channel. It runs on the
// channel's read goroutine.
type FrameHandler func(frame Frame)

type channelState struct {
	index  uint8
	driver Driver
	tx     chan Frame
}

// Interface owns the drivers of every CAN channel and runs one read and
// one write goroutine per assigned channel.
type Interface struct {
	mu        sync.RWMutex
	channels  []*channelState
	queueSize int
	handler   FrameHandler
	logger    logger.Logger
	stats     *Statistics

	state  State
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewInterface creates a stopped interface with no channels.
func NewInterface(log logger.Logger) *Interface {
	return &Interface{
		queueSize: DefaultQueueSize,
		logger:    logger.WithComponent(log, "hardware"),
		stats:     NewStatistics(),
		state:     StateStopped,
	}
}

// SetNumberOfChannels resizes the channel table. Drivers of kept channels
// stay assigned.
func (h *Interface) SetNumberOfChannels(n uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRunning {
		return ErrInterfaceRunning
	}
	resized := make([]*channelState, n)
	for i := range resized {
		if i < len(h.channels) {
			resized[i] = h.channels[i]
		} else {
			resized[i] = &channelState{index: uint8(i)}
		}
	}
	h.channels = resized
	return nil
}

// NumberOfChannels returns the size of the channel table
func (h *Interface) NumberOfChannels() uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return uint8(len(h.channels))
}

// SetQueueSize sets the per-channel transmit queue length used by Start.
func (h *Interface) SetQueueSize(n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRunning {
		return ErrInterfaceRunning
	}
	if n <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", n)
	}
	h.queueSize = n
	return nil
}

// AssignDriver binds d to channel.
func (h *Interface) AssignDriver(channel uint8, d Driver) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRunning {
		return ErrInterfaceRunning
	}
	if int(channel) >= len(h.channels) {
		return fmt.Errorf("%w: %d of %d", ErrChannelOutOfRange, channel, len(h.channels))
	}
	h.channels[channel].driver = d
	h.logger.Info("Hardware: driver %T assigned to channel %d", d, channel)
	return nil
}

// UnassignDriver removes the driver of channel.
func (h *Interface) UnassignDriver(channel uint8) error {
	return h.AssignDriver(channel, nil)
}

// Driver returns the driver of channel or nil.
func (h *Interface) Driver(channel uint8) Driver {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(channel) >= len(h.channels) {
		return nil
	}
	return h.channels[channel].driver
}

// SetFrameHandler sets the receiver of incoming frames.
func (h *Interface) SetFrameHandler(fn FrameHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

// Start opens every assigned driver and starts its loops. If a driver
// fails to open, the ones already opened are closed again.
func (h *Interface) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRunning {
		return ErrInterfaceRunning
	}

	var opened []*channelState
	for _, ch := range h.channels {
		if ch.driver == nil {
			continue
		}
		if err := ch.driver.Open(); err != nil {
			for _, o := range opened {
				o.driver.Close()
			}
			return fmt.Errorf("open channel %d: %w", ch.index, err)
		}
		if n, ok := ch.driver.(StateNotifier); ok {
			n.SetConnectionStateListener(&connectionLogger{channel: ch.index, logger: h.logger})
		}
		ch.tx = make(chan Frame, h.queueSize)
		opened = append(opened, ch)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)
	for _, ch := range opened {
		group.Go(func() error { return h.readLoop(gctx, ch) })
		group.Go(func() error { return h.writeLoop(gctx, ch) })
	}

	h.cancel = cancel
	h.group = group
	h.state = StateRunning
	h.logger.Info("Hardware: started %d of %d channels", len(opened), len(h.channels))
	return nil
}

// Stop closes every driver and waits for the loops to end.
func (h *Interface) Stop() error {
	h.mu.Lock()
	if h.state == StateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStopped
	h.cancel()

	var errs []error
	for _, ch := range h.channels {
		if ch.driver == nil || ch.tx == nil {
			continue
		}
		if err := ch.driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %d: %w", ch.index, err))
		}
	}
	group := h.group
	h.mu.Unlock()

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	h.mu.Lock()
	for _, ch := range h.channels {
		ch.tx = nil
	}
	h.mu.Unlock()
	h.logger.Info("Hardware: stopped")
	return errors.Join(errs...)
}

// IsRunning reports whether the loops are active
func (h *Interface) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state == StateRunning
}

// Send queues frame on its channel without blocking. ErrQueueFull means
// the caller should retry later.
func (h *Interface) Send(frame Frame) error {
	if err := frame.Validate(); err != nil {
		h.stats.InvalidFrame()
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateRunning {
		return ErrInterfaceStopped
	}
	if int(frame.Channel) >= len(h.channels) {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, frame.Channel)
	}
	ch := h.channels[frame.Channel]
	if ch.driver == nil || ch.tx == nil {
		return fmt.Errorf("%w: %d", ErrNoDriver, frame.Channel)
	}

	select {
	case ch.tx <- frame:
		return nil
	default:
		h.stats.TxDropped()
		return ErrQueueFull
	}
}

// Statistics returns interface statistics
func (h *Interface) Statistics() *Statistics {
	return h.stats
}

func (h *Interface) readLoop(ctx context.Context, ch *channelState) error {
	h.logger.Debug("Hardware: channel %d read loop started", ch.index)
	defer h.logger.Debug("Hardware: channel %d read loop stopped", ch.index)

	for {
		frame, err := ch.driver.ReadFrame(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrDriverClosed) {
				return nil
			}
			h.stats.ReadError()
			h.logger.Debug("Hardware: channel %d read error: %v", ch.index, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}
		if err := frame.Validate(); err != nil {
			h.stats.InvalidFrame()
			continue
		}

		frame.Channel = ch.index
		if frame.Timestamp.IsZero() {
			frame.Timestamp = time.Now()
		}
		h.stats.FrameRx()
		if logger.FrameDebug() {
			h.logger.Debug("Hardware: rx %s", frame)
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()
		if handler != nil {
			handler(frame)
		}
	}
}

func (h *Interface) writeLoop(ctx context.Context, ch *channelState) error {
	tx := ch.tx
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-tx:
			if err := ch.driver.WriteFrame(ctx, frame); err != nil {
				h.stats.WriteError()
				h.logger.Warn("Hardware: channel %d write error: %v", ch.index, err)
				continue
			}
			h.stats.FrameTx()
			if logger.FrameDebug() {
				h.logger.Debug("Hardware: tx %s", frame)
			}
		}
	}
}

type connectionLogger struct {
	channel uint8
	logger  logger.Logger
}

func (c *connectionLogger) OnConnectionEstablished() {
	c.logger.Info("Hardware: channel %d connected", c.channel)
}

func (c *connectionLogger) OnConnectionLost() {
	c.logger.Warn("Hardware: channel %d connection lost", c.channel)
}
