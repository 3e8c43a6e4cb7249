package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/signaling"
	"github.com/rescp17/dx/pkg/transfer"
	webrtcPkg "github.com/rescp17/dx/pkg/webrtc"
)

// ErrNegotiationTimeout bounds the wait for the other party and the handshake.
var ErrNegotiationTimeout = errors.New("timed out waiting for the peer")

type Options struct {
	Role               pairing.Role
	Code               pairing.Code
	RelayURL           string
	NegotiationTimeout time.Duration
	API                *webrtcPkg.WebRTCAPI
	Lifecycle          *lifecycle.Manager
	UIMessages         chan<- tea.Msg
}

// Session is an open transfer channel plus the context that ends with it.
type Session struct {
	ID      string
	Channel *webrtcPkg.Channel

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Context is cancelled when the channel closes or connectivity fails.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Close() {
	s.cancel(context.Canceled)
}

// Connect joins the room, negotiates the peer connection and returns once the
// transfer channel is open. Every resource is registered with the lifecycle
// manager as soon as it exists, so any failure is cleaned up by its teardown.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	id := uuid.NewString()
	log := slog.With("session", id, "role", opts.Role)
	lc := opts.Lifecycle

	notify(opts.UIMessages, appevents.StatusUpdateMsg{Message: "Connecting to relay..."})
	client, err := signaling.Dial(ctx, opts.RelayURL)
	if err != nil {
		return nil, err
	}
	lc.SetRelay(client)

	pc, err := opts.API.NewPeerConnection()
	if err != nil {
		return nil, err
	}
	lc.SetPeer(pc)

	states := make(chan webrtc.PeerConnectionState, 16)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		select {
		case states <- s:
		case <-lc.Done():
		}
	})

	opened := make(chan *webrtcPkg.Channel, 1)
	awaitOpen := func(ch *webrtcPkg.Channel) {
		select {
		case <-ch.Opened():
			select {
			case opened <- ch:
			default:
			}
		case <-ch.Done():
		}
	}

	negotiator := webrtcPkg.NewNegotiator(opts.Role, pc, client)
	if opts.Role == pairing.Sender {
		dc, err := pc.CreateDataChannel(webrtcPkg.ChannelLabel, webrtcPkg.ReliableChannelInit())
		if err != nil {
			return nil, fmt.Errorf("failed to create data channel: %w", err)
		}
		go awaitOpen(webrtcPkg.NewChannel(dc))
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if err := webrtcPkg.ValidateReliable(dc); err != nil {
				log.Warn("Rejecting data channel", "label", dc.Label(), "error", err)
				_ = dc.Close()
				return
			}
			go awaitOpen(webrtcPkg.NewChannel(dc))
		})
	}

	if err := client.Join(opts.Code); err != nil {
		return nil, err
	}
	if err := negotiator.Joined(); err != nil {
		return nil, err
	}
	log.Info("Joined room", "code", opts.Code)
	notify(opts.UIMessages, appevents.StatusUpdateMsg{Message: "Waiting for the other side..."})

	nctx, cancel := ctx, context.CancelFunc(func() {})
	if opts.NegotiationTimeout > 0 {
		nctx, cancel = context.WithTimeoutCause(ctx, opts.NegotiationTimeout, ErrNegotiationTimeout)
	}
	defer cancel()

	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				if err := client.Err(); err != nil {
					return nil, err
				}
				if cause := context.Cause(nctx); cause != nil {
					return nil, cause
				}
				return nil, signaling.ErrRelayClosed
			}
			if msg.Type == signaling.TypeStart {
				notify(opts.UIMessages, appevents.StatusUpdateMsg{Message: "Peer joined, negotiating..."})
			}
			if err := negotiator.HandleSignal(msg); err != nil {
				return nil, err
			}
		case s := <-states:
			if err := negotiator.HandleConnectionState(s); err != nil {
				return nil, err
			}
		case ch := <-opened:
			negotiator.ChannelOpened()
			lc.SetChannel(ch)
			lc.ReleaseRelay()
			log.Info("Transfer channel open")
			notify(opts.UIMessages, appevents.StatusUpdateMsg{Message: "Connected"})

			sctx, scancel := context.WithCancelCause(ctx)
			go watch(sctx, scancel, negotiator, states, ch)
			return &Session{ID: id, Channel: ch, ctx: sctx, cancel: scancel}, nil
		case <-nctx.Done():
			return nil, context.Cause(nctx)
		}
	}
}

// watch owns the negotiator once the channel is open.
func watch(ctx context.Context, cancel context.CancelCauseFunc, n *webrtcPkg.Negotiator, states <-chan webrtc.PeerConnectionState, ch *webrtcPkg.Channel) {
	for {
		select {
		case s := <-states:
			if err := n.HandleConnectionState(s); err != nil {
				cancel(err)
				return
			}
		case <-ch.Done():
			n.Close()
			if err := ch.Err(); err != nil {
				cancel(fmt.Errorf("%w: %w", transfer.ErrChannelClosed, err))
			} else {
				cancel(transfer.ErrChannelClosed)
			}
			return
		case <-ctx.Done():
			n.Close()
			return
		}
	}
}

func notify(uiMessages chan<- tea.Msg, msg tea.Msg) {
	if uiMessages == nil {
		return
	}
	select {
	case uiMessages <- msg:
	default:
	}
}
