package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MessageType tags every JSON message exchanged with the relay.
type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeStart        MessageType = "start"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeError        MessageType = "error"
)

var ErrUnknownMessage = errors.New("unknown signaling message type")

// ErrRelayRejected wraps an error message sent by the relay, such as a full room.
var ErrRelayRejected = errors.New("relay rejected the request")

// Message is the single envelope used in both directions. Only the fields
// relevant to Type are populated.
type Message struct {
	Type      MessageType                `json:"type"`
	Code      string                     `json:"code,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Message   string                     `json:"message,omitempty"`
}

// ParseMessage decodes and validates one relay message.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode signaling message: %w", err)
	}
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) validate() error {
	switch m.Type {
	case TypeJoin:
		if m.Code == "" {
			return fmt.Errorf("join message missing code")
		}
	case TypeStart:
	case TypeOffer:
		if m.SDP == nil || m.SDP.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("offer message missing offer sdp")
		}
	case TypeAnswer:
		if m.SDP == nil || m.SDP.Type != webrtc.SDPTypeAnswer {
			return fmt.Errorf("answer message missing answer sdp")
		}
	case TypeICECandidate:
		if m.Candidate == nil {
			return fmt.Errorf("ice-candidate message missing candidate")
		}
	case TypeError:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	return nil
}
