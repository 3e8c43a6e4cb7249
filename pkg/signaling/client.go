package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/rescp17/dx/pkg/pairing"
)

const (
	writeWait       = 5 * time.Second
	maxMessageBytes = 64 * 1024
)

// ErrRelayClosed is reported when the relay connection goes away on its own.
var ErrRelayClosed = errors.New("relay connection closed")

// Client is the participant side of the relay protocol. It joins one room and
// forwards negotiation messages; it knows nothing about transfers.
type Client struct {
	conn *websocket.Conn
	code pairing.Code

	writeMu  sync.Mutex
	messages chan Message
	done     chan struct{}
	ended    chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial opens the relay connection. Reading starts immediately; inbound
// messages are delivered on Messages.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &Client{
		conn:     conn,
		messages: make(chan Message, 32),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.ended)
	defer close(c.messages)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() {
				c.setErr(fmt.Errorf("%w: %v", ErrRelayClosed, err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			slog.Warn("Ignoring non-text relay message", "type", msgType)
			continue
		}
		msg, err := ParseMessage(data)
		if err != nil {
			slog.Warn("Ignoring malformed relay message", "error", err)
			continue
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Messages is closed once the connection ends; Err tells why.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Done is closed when the read side of the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.ended
}

// Err returns the reason the connection ended, or nil after a local Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Join enters the room named by code. Subsequent messages are tagged with it.
func (c *Client) Join(code pairing.Code) error {
	c.code = code
	return c.write(Message{Type: TypeJoin, Code: string(code)})
}

func (c *Client) SendOffer(offer webrtc.SessionDescription) error {
	return c.write(Message{Type: TypeOffer, Code: string(c.code), SDP: &offer})
}

func (c *Client) SendAnswer(answer webrtc.SessionDescription) error {
	return c.write(Message{Type: TypeAnswer, Code: string(c.code), SDP: &answer})
}

func (c *Client) SendICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.write(Message{Type: TypeICECandidate, Code: string(c.code), Candidate: &candidate})
}

func (c *Client) write(msg Message) error {
	if c.closing.Load() {
		return ErrRelayClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s to relay: %w", msg.Type, err)
	}
	return nil
}

// Close sends a normal close frame and releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client close"),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
