package webrtc

import (
	"fmt"
	"log/slog"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const (
	MTU uint = 1400
)

// DefaultICEServers are used when no STUN/TURN servers are configured.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// Config holds the configuration for creating peer connections.
type Config struct {
	ICEServers []webrtc.ICEServer
	// MDNSCandidates hides host addresses behind .local names.
	MDNSCandidates bool
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
	Logger          *slog.Logger
}

// WebRTCAPI owns the pion API shared by every peer connection of the process.
type WebRTCAPI struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

func NewWebRTCAPI(cfg Config) *WebRTCAPI {
	settings := webrtc.SettingEngine{}
	if cfg.MDNSCandidates {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	} else {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryOnly)
	}
	settings.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	settings.SetReceiveMTU(MTU)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings.LoggerFactory = NewLoggerFactory(logger)

	servers := cfg.ICEServers
	if len(servers) == 0 {
		servers = DefaultICEServers
	}
	return &WebRTCAPI{
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		iceServers: servers,
	}
}

// NewPeerConnection creates the single peer connection of this process.
func (a *WebRTCAPI) NewPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: a.iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return pc, nil
}
