// Package signaling carries session descriptions and connectivity candidates
// between mesh participants before a direct data channel exists.
//
// Inbound traffic is a single ordered stream of Envelope values, a closed
// set of types (PeerAnnounced, PeerLeft, Offer, Answer, Candidate). Gateway is
// the boundary the mesh consumes; WSGateway talks to a Relay over WebSocket
// and MemoryRelay connects participants in-process for tests.
package signaling

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Envelope is one signaling event tagged with the remote participant id.
type Envelope interface {
	// Sender returns the remote participant the envelope originates from.
	Sender() string
	envelope()
}

// PeerAnnounced tells the local participant that From joined the relay.
// The receiving side initiates negotiation.
type PeerAnnounced struct {
	From string
}

// PeerLeft tells the local participant that From left the relay.
type PeerLeft struct {
	From string
}

// Offer carries a session description offer.
type Offer struct {
	From string
	To   string
	SDP  string
}

// Answer carries a session description answer.
type Answer struct {
	From string
	To   string
	SDP  string
}

// Candidate carries one trickled ICE candidate. A nil Candidate is the
// end-of-candidates marker.
type Candidate struct {
	From      string
	To        string
	Candidate *webrtc.ICECandidateInit
}

func (e PeerAnnounced) Sender() string { return e.From }
func (e PeerLeft) Sender() string      { return e.From }
func (e Offer) Sender() string         { return e.From }
func (e Answer) Sender() string        { return e.From }
func (e Candidate) Sender() string     { return e.From }

func (PeerAnnounced) envelope() {}
func (PeerLeft) envelope()      {}
func (Offer) envelope()         {}
func (Answer) envelope()        {}
func (Candidate) envelope()     {}

// Gateway is the signaling collaborator of the mesh.
//
// Send methods are fire-and-forget: a returned error means the envelope was
// not handed to the relay, and no acknowledgement is ever expected.
type Gateway interface {
	// LocalPeerID resolves the local participant id. It may block until the
	// identity is known.
	LocalPeerID(ctx context.Context) (string, error)

	// Subscribe returns the inbound envelope stream for localID. Envelopes for
	// the same remote peer are delivered in relay order. The channel is
	// closed when the gateway shuts down.
	Subscribe(ctx context.Context, localID string) (<-chan Envelope, error)

	SendOffer(ctx context.Context, offer Offer) error
	SendAnswer(ctx context.Context, answer Answer) error
	SendCandidate(ctx context.Context, candidate Candidate) error
}
