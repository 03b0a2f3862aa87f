// Package transport is the boundary between the mesh and the WebRTC engine.
//
// The mesh drives negotiation through the Session and Channel interfaces;
// Engine provides the production implementation on top of pion/webrtc.
// Keeping the boundary narrow lets the negotiation state machine be tested
// against in-process fakes without ICE, DTLS or SCTP.
package transport

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrChannelClosed is returned when sending on a channel that is not open.
	ErrChannelClosed = errors.New("data channel is not open")

	// ErrInvalidDescription marks a session description that failed to parse.
	ErrInvalidDescription = errors.New("invalid session description")

	// ErrInvalidCandidate marks a connectivity candidate that failed to parse.
	ErrInvalidCandidate = errors.New("invalid ICE candidate")
)

// Session is one negotiated transport endpoint towards a single remote peer.
// Implementations must be safe for use from multiple goroutines; callbacks may
// be invoked from engine goroutines.
type Session interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error

	// AddICECandidate applies a remote candidate. It must only be called once a
	// remote description has been set.
	AddICECandidate(webrtc.ICECandidateInit) error

	// CreateDataChannel opens the local side of a data channel. The channel
	// reports open once the remote side has completed the handshake.
	CreateDataChannel(label string) (Channel, error)

	// OnICECandidate registers the local candidate callback. A nil candidate
	// signals the end of gathering.
	OnICECandidate(func(*webrtc.ICECandidateInit))

	// OnICEConnectionStateChange registers the connectivity observer.
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))

	// OnDataChannel registers the callback for channels opened by the remote.
	OnDataChannel(func(Channel))

	Close() error
}

// Channel is a duplex message stream on top of a Session.
type Channel interface {
	Label() string

	// IsOpen reports whether the channel can currently send.
	IsOpen() bool

	// Send writes one message. It fails fast with ErrChannelClosed when the
	// channel is not open and blocks under backpressure until the buffer
	// drains or ctx is done.
	Send(ctx context.Context, data []byte) error

	OnOpen(func())
	OnClose(func())
	OnMessage(func([]byte))

	Close() error
}

// SessionFactory allocates a new Session for a remote peer.
type SessionFactory interface {
	NewSession() (Session, error)
}
