package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/dx/pkg/transfer"
)

// ChannelLabel names the single data channel of a transfer.
const ChannelLabel = "transfer"

const inboundBuffer = 1024

// ReliableChannelInit is ordered with unlimited retransmits. Partial
// reliability would drop chunks that the integrity check can only detect.
func ReliableChannelInit() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{Ordered: &ordered}
}

// ValidateReliable rejects a remote channel that is not fully reliable and ordered.
func ValidateReliable(dc *webrtc.DataChannel) error {
	if dc.Label() != ChannelLabel {
		return fmt.Errorf("expected label=%q (got %q)", ChannelLabel, dc.Label())
	}
	if !dc.Ordered() {
		return fmt.Errorf("transfer datachannel must be ordered")
	}
	if dc.MaxPacketLifeTime() != nil {
		return fmt.Errorf("transfer datachannel must be fully reliable (maxPacketLifeTime must be unset)")
	}
	if dc.MaxRetransmits() != nil {
		return fmt.Errorf("transfer datachannel must be fully reliable (maxRetransmits must be unset)")
	}
	return nil
}

// Channel adapts a pion data channel to the transfer protocol. Callbacks are
// turned into channel sends so a single loop can consume them.
type Channel struct {
	dc *webrtc.DataChannel

	messages chan transfer.Message
	opened   chan struct{}
	closed   chan struct{}

	openOnce  sync.Once
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewChannel must be called before the channel can deliver messages, i.e.
// right after CreateDataChannel or inside OnDataChannel.
func NewChannel(dc *webrtc.DataChannel) *Channel {
	c := &Channel{
		dc:       dc,
		messages: make(chan transfer.Message, inboundBuffer),
		opened:   make(chan struct{}),
		closed:   make(chan struct{}),
	}
	dc.OnOpen(c.markOpen)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		// pion reuses the receive buffer after the callback returns
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		select {
		case c.messages <- transfer.Message{IsText: msg.IsString, Data: data}:
		case <-c.closed:
		}
	})
	dc.OnClose(c.markClosed)
	dc.OnError(func(err error) {
		c.errMu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.errMu.Unlock()
		c.markClosed()
	})
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		c.markOpen()
	}
	return c
}

func (c *Channel) markOpen()   { c.openOnce.Do(func() { close(c.opened) }) }
func (c *Channel) markClosed() { c.closeOnce.Do(func() { close(c.closed) }) }

// Messages is never closed; select on Done as well.
func (c *Channel) Messages() <-chan transfer.Message { return c.messages }

func (c *Channel) Opened() <-chan struct{} { return c.opened }

// Done is closed when the channel closes or errors.
func (c *Channel) Done() <-chan struct{} { return c.closed }

// Err returns the channel error, if it ended with one.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) Label() string { return c.dc.Label() }

func (c *Channel) SendText(text string) error { return c.dc.SendText(text) }

func (c *Channel) Send(data []byte) error { return c.dc.Send(data) }

func (c *Channel) BufferedAmount() uint64 { return c.dc.BufferedAmount() }

func (c *Channel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.dc.SetBufferedAmountLowThreshold(threshold)
}

func (c *Channel) OnBufferedAmountLow(f func()) { c.dc.OnBufferedAmountLow(f) }

func (c *Channel) Close() error {
	err := c.dc.Close()
	c.markClosed()
	return err
}

var _ transfer.Channel = (*Channel)(nil)
