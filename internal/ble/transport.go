package ble

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/flipwire/flipwire/internal/util"
)

var (
	// ErrDisconnected is returned by every Send after the channel has
	// reached its terminal state, whatever the original cause.
	ErrDisconnected = errors.New("ble: channel disconnected")

	// ErrPayloadTooLarge rejects a Send bigger than one BLE write.
	ErrPayloadTooLarge = errors.New("ble: payload exceeds negotiated MTU")
)

// CharWriter performs exactly one BLE write per call. Satisfied by
// *bluetooth.DeviceCharacteristic.
type CharWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

// Channel turns a write characteristic and a notify characteristic into
// a byte-oriented duplex pipe. Outbound: Send, one write per call, at
// most MTU bytes. Inbound: Packets, notification payloads in arrival
// order. Disconnect (reported by the stack, a failed write, or Close)
// is terminal: Done closes, Err carries the cause, and no payload is
// delivered afterwards.
type Channel struct {
	mtu       int
	w         CharWriter
	log       zerolog.Logger
	flowDelay time.Duration

	packets chan []byte
	done    chan struct{}

	flowPending atomic.Bool

	mu     sync.Mutex
	err    error
	failed bool
}

// ChannelOptions tunes a Channel beyond its characteristic handles.
type ChannelOptions struct {
	// MTU is the negotiated maximum write size. Values above MaxTU are
	// clamped; zero means DefaultMTU.
	MTU int
	// FlowDelay is how long Send pauses after the peripheral signals
	// serial buffer pressure on the flow control characteristic.
	FlowDelay time.Duration
	Logger    zerolog.Logger
}

// NewChannel wraps an outbound characteristic writer. Inbound payloads
// are handed in through Push, normally from the notify characteristic's
// callback wired up by OpenChannel.
func NewChannel(w CharWriter, opts ChannelOptions) *Channel {
	mtu := opts.MTU
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if mtu > MaxTU {
		mtu = MaxTU
	}
	return &Channel{
		mtu:       mtu,
		w:         w,
		log:       opts.Logger,
		flowDelay: opts.FlowDelay,
		packets:   make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

// MTU returns the negotiated maximum payload for a single Send.
func (c *Channel) MTU() int {
	return c.mtu
}

// Send writes one payload to the outbound characteristic. Exactly one
// BLE write; callers never pass more than MTU bytes, the frame codec
// guarantees that. A failed write is terminal for the channel.
func (c *Channel) Send(p []byte) error {
	if len(p) > c.mtu {
		return fmt.Errorf("%w (%d > %d)", ErrPayloadTooLarge, len(p), c.mtu)
	}
	select {
	case <-c.done:
		return c.Err()
	default:
	}

	// The Flipper asks us to back off when its serial buffer runs low.
	if c.flowPending.Swap(false) && c.flowDelay > 0 {
		c.log.Debug().Dur("delay", c.flowDelay).Msg("flow control: pausing before write")
		select {
		case <-time.After(c.flowDelay):
		case <-c.done:
			return c.Err()
		}
	}

	c.log.Trace().Int("len", len(p)).Msg("ble write")
	if _, err := c.w.WriteWithoutResponse(p); err != nil {
		c.fail(fmt.Errorf("write failed: %w", err))
		return c.Err()
	}
	return nil
}

// Push queues one inbound notification payload. Called from the BLE
// stack's notification callback; the payload is copied because the
// stack reuses its buffer.
func (c *Channel) Push(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	if c.log.GetLevel() <= zerolog.TraceLevel {
		if util.IsTextData(p) {
			c.log.Trace().Int("len", len(p)).Str("text", string(p)).Msg("ble notification")
		} else {
			c.log.Trace().Int("len", len(p)).Msg("ble notification\n" + util.HexDump(p))
		}
	}
	select {
	case c.packets <- cp:
	case <-c.done:
	}
}

// PushFlow records a flow control notification. The payload (buffer
// headroom) is not interesting, only that the peripheral spoke up.
func (c *Channel) PushFlow(p []byte) {
	c.flowPending.Store(true)
}

// Packets returns the inbound payload queue. It is never closed; select
// against Done.
func (c *Channel) Packets() <-chan []byte {
	return c.packets
}

// Done closes when the channel reaches its terminal state.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal cause, or nil while the channel is live.
// The cause always wraps ErrDisconnected.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close moves the channel to its terminal state. Used both for clean
// teardown and to force-fail everything blocked on the channel when the
// user cancels.
func (c *Channel) Close() error {
	c.fail(nil)
	return nil
}

// Fail records a stack-reported disconnect (e.g. a connection handler
// firing) and tears the channel down.
func (c *Channel) Fail(cause error) {
	c.fail(cause)
}

func (c *Channel) fail(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return
	}
	c.failed = true
	if cause != nil {
		c.err = fmt.Errorf("%w: %v", ErrDisconnected, cause)
		c.log.Debug().Err(cause).Msg("channel terminated")
	} else {
		c.err = ErrDisconnected
		c.log.Debug().Msg("channel closed")
	}
	close(c.done)
}
