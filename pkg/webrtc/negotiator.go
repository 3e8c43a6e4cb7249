package webrtc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/signaling"
)

// ErrNegotiationFailed is terminal: no renegotiation is attempted.
var ErrNegotiationFailed = errors.New("peer negotiation failed")

type State int

const (
	StateIdle State = iota
	StateJoined
	StateOffering
	StateAwaitingOffer
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoined:
		return "joined"
	case StateOffering:
		return "offering"
	case StateAwaitingOffer:
		return "awaiting-offer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// PeerConnection is the subset of *webrtc.PeerConnection the negotiator drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
}

// Signaler decouples negotiation from the relay transport.
type Signaler interface {
	SendOffer(offer webrtc.SessionDescription) error
	SendAnswer(answer webrtc.SessionDescription) error
	SendICECandidate(candidate webrtc.ICECandidateInit) error
}

// Negotiator runs the offer/answer/candidate exchange for one peer connection.
// All methods except the candidate callback must be called from a single loop.
type Negotiator struct {
	role     pairing.Role
	pc       PeerConnection
	signaler Signaler

	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// NewNegotiator starts forwarding local candidates as they are discovered.
func NewNegotiator(role pairing.Role, pc PeerConnection, signaler Signaler) *Negotiator {
	n := &Negotiator{role: role, pc: pc, signaler: signaler}
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		err := signaler.SendICECandidate(candidate.ToJSON())
		switch {
		case err == nil:
		case errors.Is(err, signaling.ErrRelayClosed):
			// gathering outlives the relay once the channel is open
			slog.Debug("Dropping late ICE candidate", "error", err)
		default:
			slog.Warn("Failed to forward ICE candidate", "error", err)
		}
	})
	return n
}

func (n *Negotiator) State() State {
	return n.state
}

func (n *Negotiator) setState(next State) {
	if n.state == next {
		return
	}
	slog.Debug("Negotiation state changed", "role", n.role, "from", n.state, "to", next)
	n.state = next
}

// Joined records that the relay accepted the join.
func (n *Negotiator) Joined() error {
	if n.state != StateIdle {
		return fmt.Errorf("cannot join in state %s", n.state)
	}
	n.setState(StateJoined)
	if n.role == pairing.Receiver {
		n.setState(StateAwaitingOffer)
	}
	return nil
}

// HandleSignal dispatches one relay message.
func (n *Negotiator) HandleSignal(msg signaling.Message) error {
	switch msg.Type {
	case signaling.TypeStart:
		return n.HandleStart()
	case signaling.TypeOffer:
		return n.HandleOffer(*msg.SDP)
	case signaling.TypeAnswer:
		return n.HandleAnswer(*msg.SDP)
	case signaling.TypeICECandidate:
		n.HandleCandidate(*msg.Candidate)
		return nil
	case signaling.TypeError:
		return n.fail(fmt.Errorf("%w: %s", signaling.ErrRelayRejected, msg.Message))
	default:
		slog.Debug("Ignoring relay message", "type", msg.Type)
		return nil
	}
}

// HandleStart makes the sender emit its offer once the receiver is in the room.
func (n *Negotiator) HandleStart() error {
	if n.role != pairing.Sender {
		return nil
	}
	if n.state != StateJoined {
		slog.Debug("Ignoring start", "state", n.state)
		return nil
	}
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return n.fail(fmt.Errorf("failed to create offer: %w", err))
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return n.fail(fmt.Errorf("failed to set local description: %w", err))
	}
	if err := n.signaler.SendOffer(offer); err != nil {
		return n.fail(fmt.Errorf("failed to send offer: %w", err))
	}
	n.setState(StateOffering)
	return nil
}

func (n *Negotiator) HandleOffer(offer webrtc.SessionDescription) error {
	if n.role != pairing.Receiver || n.state != StateAwaitingOffer || n.remoteSet {
		slog.Warn("Ignoring unexpected offer", "role", n.role, "state", n.state)
		return nil
	}
	if err := n.pc.SetRemoteDescription(offer); err != nil {
		return n.fail(fmt.Errorf("failed to set remote description: %w", err))
	}
	n.remoteApplied()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return n.fail(fmt.Errorf("failed to create answer: %w", err))
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return n.fail(fmt.Errorf("failed to set local description for answer: %w", err))
	}
	if err := n.signaler.SendAnswer(answer); err != nil {
		return n.fail(fmt.Errorf("failed to send answer: %w", err))
	}
	return nil
}

func (n *Negotiator) HandleAnswer(answer webrtc.SessionDescription) error {
	if n.role != pairing.Sender || n.state != StateOffering || n.remoteSet {
		slog.Warn("Ignoring unexpected answer", "role", n.role, "state", n.state)
		return nil
	}
	if err := n.pc.SetRemoteDescription(answer); err != nil {
		return n.fail(fmt.Errorf("failed to set remote description: %w", err))
	}
	n.remoteApplied()
	return nil
}

// HandleCandidate applies a remote candidate, or queues it until the remote
// description is in place. A bad candidate is logged, not fatal.
func (n *Negotiator) HandleCandidate(candidate webrtc.ICECandidateInit) {
	if n.state.Terminal() {
		return
	}
	if !n.remoteSet {
		n.pending = append(n.pending, candidate)
		return
	}
	if err := n.pc.AddICECandidate(candidate); err != nil {
		slog.Warn("Failed to add ICE candidate", "error", err)
	}
}

func (n *Negotiator) remoteApplied() {
	n.remoteSet = true
	pending := n.pending
	n.pending = nil
	for _, c := range pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			slog.Warn("Failed to add queued ICE candidate", "error", err)
		}
	}
}

// Pending reports how many remote candidates are waiting for a remote description.
func (n *Negotiator) Pending() int {
	return len(n.pending)
}

// HandleConnectionState reacts to the peer connection's state. Failed and
// disconnected are terminal and return ErrNegotiationFailed.
func (n *Negotiator) HandleConnectionState(s webrtc.PeerConnectionState) error {
	switch s {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		if n.state.Terminal() {
			return nil
		}
		return n.fail(fmt.Errorf("%w: connection %s", ErrNegotiationFailed, s))
	case webrtc.PeerConnectionStateClosed:
		if !n.state.Terminal() {
			n.setState(StateClosed)
		}
	default:
		slog.Debug("Peer connection state", "state", s)
	}
	return nil
}

// ChannelOpened marks the transfer channel as usable.
func (n *Negotiator) ChannelOpened() {
	if n.state.Terminal() {
		return
	}
	n.setState(StateConnected)
}

func (n *Negotiator) Close() {
	if n.state != StateFailed {
		n.setState(StateClosed)
	}
}

func (n *Negotiator) fail(err error) error {
	n.setState(StateFailed)
	if errors.Is(err, ErrNegotiationFailed) || errors.Is(err, signaling.ErrRelayRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
}
