package transfer

import (
	"sync"
	"testing"
)

// memChannel is one end of an in-memory ordered channel pair.
type memChannel struct {
	mu    sync.Mutex
	peer  *memChannel
	inbox chan Message
	texts []string
	onLow func()
}

func newPipe() (*memChannel, *memChannel) {
	a := &memChannel{inbox: make(chan Message, 4096)}
	b := &memChannel{inbox: make(chan Message, 4096)}
	a.peer, b.peer = b, a
	return a, b
}

func (c *memChannel) SendText(text string) error {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	if c.peer != nil {
		c.peer.inbox <- Message{IsText: true, Data: []byte(text)}
	}
	return nil
}

func (c *memChannel) Send(data []byte) error {
	if c.peer != nil {
		c.peer.inbox <- Message{Data: append([]byte(nil), data...)}
	}
	return nil
}

func (c *memChannel) BufferedAmount() uint64 { return 0 }
func (c *memChannel) SetBufferedAmountLowThreshold(uint64) {}
func (c *memChannel) OnBufferedAmountLow(f func()) { c.onLow = f }

func (c *memChannel) sentFrames(t *testing.T) []ControlFrame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var frames []ControlFrame
	for _, text := range c.texts {
		frame, err := NewJSONCodec().Decode([]byte(text))
		if err != nil {
			t.Fatalf("sent an undecodable frame %q: %v", text, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func textMsg(t *testing.T, frame ControlFrame) Message {
	t.Helper()
	text, err := NewJSONCodec().Encode(frame)
	if err != nil {
		t.Fatalf("encode %s: %v", frame.Type, err)
	}
	return Message{IsText: true, Data: []byte(text)}
}

func binMsg(data []byte) Message {
	return Message{Data: data}
}
