package pcm

import (
	"fmt"
	"sync"

	"github.com/brutella/can"
)

// Frame is a classical CAN frame with an 11-bit identifier. Payloads are
// rebuilt every cycle; nothing retains a pointer into Data.
type Frame struct {
	ID     uint32
	Length uint8
	Data   [8]byte
}

// NewFrame copies data into a fixed-size frame.
func NewFrame(id uint32, data []byte) Frame {
	f := Frame{ID: id, Length: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

// Bytes returns the valid portion of the payload.
func (f Frame) Bytes() []byte {
	return f.Data[:f.Length]
}

// Transport is the platform send/receive layer. Both operations are
// non-blocking: Receive returns false when no frame is pending, Send
// returns an error when the outbound path cannot take the frame this
// tick (the scheduler retries or skips per frame priority).
type Transport interface {
	Receive() (Frame, bool)
	Send(Frame) error
	Close() error
}

const rxQueueDepth = 64

// SocketCANTransport adapts a brutella/can bus to the non-blocking poll
// model of the control loop. The bus handler goroutine feeds a bounded
// queue; when the queue is full the oldest frame is dropped, which is
// acceptable because every emulated input repeats at a fixed rate.
type SocketCANTransport struct {
	bus    *can.Bus
	logger Logger

	mu      sync.Mutex
	rx      chan Frame
	dropped uint64
	closed  bool
}

// NewSocketCANTransport opens the named SocketCAN interface (e.g. "can0")
// and starts the receive pump.
func NewSocketCANTransport(device string, logger Logger) (*SocketCANTransport, error) {
	logger = ensureLogger(logger)
	bus, err := can.NewBusForInterfaceWithName(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN interface %s: %v", device, err)
	}

	t := &SocketCANTransport{
		bus:    bus,
		logger: logger,
		rx:     make(chan Frame, rxQueueDepth),
	}

	bus.Subscribe(t)

	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			logger.Error("CAN bus receive loop ended: %v", err)
		}
	}()

	return t, nil
}

// Handle implements can.Handler. Runs on the bus goroutine, never the
// control loop.
func (t *SocketCANTransport) Handle(frame can.Frame) {
	f := Frame{ID: frame.ID, Length: frame.Length, Data: frame.Data}
	select {
	case t.rx <- f:
	default:
		// Queue full: drop the oldest so fresh data wins.
		select {
		case <-t.rx:
		default:
		}
		select {
		case t.rx <- f:
		default:
		}
		t.mu.Lock()
		t.dropped++
		n := t.dropped
		t.mu.Unlock()
		if n%100 == 1 {
			t.logger.Warn("CAN RX queue overflow, %d frames dropped", n)
		}
	}
}

// Receive returns the next pending inbound frame without blocking.
func (t *SocketCANTransport) Receive() (Frame, bool) {
	select {
	case f := <-t.rx:
		LogCAN(t.logger, "RX", f.ID, f.Data[:], f.Length)
		return f, true
	default:
		return Frame{}, false
	}
}

// Send publishes a frame on the bus.
func (t *SocketCANTransport) Send(f Frame) error {
	LogCAN(t.logger, "TX", f.ID, f.Data[:], f.Length)
	return t.bus.Publish(can.Frame{
		ID:     f.ID,
		Length: f.Length,
		Data:   f.Data,
	})
}

// DroppedFrames reports how many inbound frames were discarded on overflow.
func (t *SocketCANTransport) DroppedFrames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *SocketCANTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.bus.Disconnect()
}
