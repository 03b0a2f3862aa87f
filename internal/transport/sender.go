package transport

import (
	"context"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// Compile-time interface check.
var _ Channel = (*dataChannel)(nil)

// dataChannel wraps a pion DataChannel, adding fail-fast sends and
// backpressure control.
type dataChannel struct {
	raw         *webrtc.DataChannel
	drainSignal chan struct{}
}

// newDataChannel wraps raw and wires the backpressure callback.
func newDataChannel(raw *webrtc.DataChannel) *dataChannel {
	c := &dataChannel{
		raw:         raw,
		drainSignal: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.drainSignal <- struct{}{}:
		default:
		}
	})

	return c
}

func (c *dataChannel) Label() string { return c.raw.Label() }

func (c *dataChannel) IsOpen() bool {
	return c.raw.ReadyState() == webrtc.DataChannelStateOpen
}

// Send blocks while bufferedAmount is above the high-water mark until it
// drains below the low-water mark or ctx is cancelled.
func (c *dataChannel) Send(ctx context.Context, data []byte) error {
	if !c.IsOpen() {
		return ErrChannelClosed
	}

	if c.raw.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.drainSignal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.raw.Send(data)
}

func (c *dataChannel) OnMessage(fn func([]byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

// OnOpen / OnClose / Close directly proxy the underlying methods.
func (c *dataChannel) OnOpen(fn func())  { c.raw.OnOpen(fn) }
func (c *dataChannel) OnClose(fn func()) { c.raw.OnClose(fn) }
func (c *dataChannel) Close() error      { return c.raw.Close() }
