package transport

import (
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mesh/internal/config"
	"github.com/1ureka/mesh/internal/util"
)

// Compile-time interface checks.
var (
	_ SessionFactory = (*Engine)(nil)
	_ Session        = (*peerSession)(nil)
)

// EngineConfig holds the engine-wide PeerConnection parameters.
type EngineConfig struct {
	ICEServers []webrtc.ICEServer

	// Unordered creates data channels without SCTP ordering.
	Unordered bool

	// IncludeLoopback gathers loopback candidates (same-host meshes, tests).
	IncludeLoopback bool

	// LoggerFactory receives pion's internal logs. Nil keeps pion's default.
	LoggerFactory logging.LoggerFactory
}

// Engine creates pion PeerConnections sharing one API instance.
type Engine struct {
	api       *webrtc.API
	config    webrtc.Configuration
	unordered bool
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	settingEngine := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}
	if cfg.LoggerFactory != nil {
		settingEngine.LoggerFactory = cfg.LoggerFactory
	}

	return &Engine{
		api:       webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		config:    webrtc.Configuration{ICEServers: cfg.ICEServers},
		unordered: cfg.Unordered,
	}
}

// NewEngineFromConfig builds an Engine from the participant configuration,
// routing pion logs through the process logger.
func NewEngineFromConfig(cfg *config.Config) *Engine {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return NewEngine(EngineConfig{
		ICEServers:      servers,
		Unordered:       cfg.Unordered,
		IncludeLoopback: cfg.IncludeLoopback,
		LoggerFactory:   util.PionLoggerFactory{},
	})
}

// NewSession creates a PeerConnection with the engine's ICE configuration.
func (e *Engine) NewSession() (Session, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, err
	}
	return &peerSession{pc: pc, unordered: e.unordered}, nil
}

// peerSession adapts *webrtc.PeerConnection to Session.
type peerSession struct {
	pc        *webrtc.PeerConnection
	unordered bool
}

func (s *peerSession) CreateOffer() (webrtc.SessionDescription, error) {
	return s.pc.CreateOffer(nil)
}

func (s *peerSession) CreateAnswer() (webrtc.SessionDescription, error) {
	return s.pc.CreateAnswer(nil)
}

func (s *peerSession) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return s.pc.SetLocalDescription(sdp)
}

func (s *peerSession) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return s.pc.SetRemoteDescription(sdp)
}

func (s *peerSession) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(candidate)
}

func (s *peerSession) CreateDataChannel(label string) (Channel, error) {
	ordered := !s.unordered
	dc, err := s.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return nil, err
	}
	return newDataChannel(dc), nil
}

func (s *peerSession) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (s *peerSession) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	s.pc.OnICEConnectionStateChange(fn)
}

func (s *peerSession) OnDataChannel(fn func(Channel)) {
	s.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(newDataChannel(dc))
	})
}

func (s *peerSession) Close() error {
	return s.pc.Close()
}
