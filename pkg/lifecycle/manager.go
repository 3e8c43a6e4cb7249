package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rescp17/dx/pkg/transfer"
)

// ErrInterrupted is the teardown reason after a local interrupt.
var ErrInterrupted = errors.New("interrupted")

const DefaultGrace = 100 * time.Millisecond

// ControlChannel is what teardown needs from the transfer channel.
type ControlChannel interface {
	SendText(text string) error
	BufferedAmount() uint64
	Close() error
}

// Manager owns the single teardown path of the process. Resources are
// registered as they come up and closed in the order channel, peer, relay.
type Manager struct {
	grace time.Duration
	codec transfer.FrameCodec

	mu          sync.Mutex
	channel     ControlChannel
	peer        io.Closer
	relay       io.Closer
	interrupted bool
	cancels     []context.CancelCauseFunc

	once sync.Once
	done chan struct{}
	err  error
}

func New(grace time.Duration) *Manager {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{
		grace: grace,
		codec: transfer.NewJSONCodec(),
		done:  make(chan struct{}),
	}
}

func (m *Manager) SetRelay(relay io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relay = relay
}

func (m *Manager) SetPeer(peer io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peer = peer
}

func (m *Manager) SetChannel(ch ControlChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = ch
}

// ReleaseRelay closes the relay early; once the channel is open it is no longer needed.
func (m *Manager) ReleaseRelay() {
	m.mu.Lock()
	relay := m.relay
	m.relay = nil
	m.mu.Unlock()
	if relay == nil {
		return
	}
	if err := relay.Close(); err != nil {
		slog.Debug("Failed to close relay connection", "error", err)
	}
	slog.Info("Relay connection released")
}

// Context returns a context cancelled, with the teardown reason as cause, on
// interrupt or teardown.
func (m *Manager) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancelCause(parent)
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		cancel(m.err)
	default:
		if m.interrupted {
			cancel(ErrInterrupted)
		}
		m.cancels = append(m.cancels, cancel)
	}
	return ctx
}

func (m *Manager) cancelAll(cause error) {
	m.mu.Lock()
	cancels := m.cancels
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel(cause)
	}
}

// Interrupt tells the peer first, so it does not wait for more frames, then
// tears down after the grace delay. In-flight writes are not aborted.
func (m *Manager) Interrupt() {
	m.mu.Lock()
	if m.interrupted {
		m.mu.Unlock()
		return
	}
	m.interrupted = true
	ch := m.channel
	m.mu.Unlock()

	select {
	case <-m.done:
		return
	default:
	}

	slog.Info("Interrupt requested")
	if ch != nil {
		if text, err := m.codec.Encode(transfer.SigintFrame()); err == nil {
			if err := ch.SendText(text); err != nil {
				slog.Warn("Failed to notify peer of interrupt", "error", err)
			}
		}
	}
	m.cancelAll(ErrInterrupted)
	time.AfterFunc(m.grace, func() { m.Teardown(ErrInterrupted) })
}

// Teardown runs once; later calls are no-ops. reason nil means success.
func (m *Manager) Teardown(reason error) {
	m.once.Do(func() {
		m.mu.Lock()
		if m.interrupted && reason == nil {
			reason = ErrInterrupted
		}
		ch, peer, relay := m.channel, m.peer, m.relay
		m.channel, m.peer, m.relay = nil, nil, nil
		m.mu.Unlock()

		if reason != nil {
			slog.Info("Tearing down", "reason", reason)
		} else {
			slog.Info("Tearing down")
		}

		if ch != nil {
			m.flush(ch)
			if err := ch.Close(); err != nil {
				slog.Debug("Failed to close channel", "error", err)
			}
		}
		if peer != nil {
			if err := peer.Close(); err != nil {
				slog.Debug("Failed to close peer connection", "error", err)
			}
		}
		if relay != nil {
			if err := relay.Close(); err != nil {
				slog.Debug("Failed to close relay connection", "error", err)
			}
		}

		m.mu.Lock()
		m.err = reason
		m.mu.Unlock()
		cause := reason
		if cause == nil {
			cause = context.Canceled
		}
		m.cancelAll(cause)
		close(m.done)
	})
}

// flush gives queued frames, such as a final verdict or sigint, up to the grace period to leave.
func (m *Manager) flush(ch ControlChannel) {
	deadline := time.Now().Add(m.grace)
	for ch.BufferedAmount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the teardown reason once Done is closed.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Manager) Interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupted
}
