package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// frameType identifies the kind of WebSocket frame.
type frameType string

const (
	frameWelcome   frameType = "welcome" // relay → client: assigned identity in To
	frameSignal    frameType = "signal"  // relay → client: From joined
	frameLeave     frameType = "leave"   // relay → client: From left
	frameOffer     frameType = "offer"
	frameAnswer    frameType = "answer"
	frameCandidate frameType = "candidate"
)

// frame is the JSON structure exchanged with the relay.
type frame struct {
	Type      frameType `json:"type"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	SDP       string    `json:"sdp,omitempty"`
	Candidate string    `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit, empty = end marker
}

// toFrame serializes an outbound envelope.
func toFrame(env Envelope) (frame, error) {
	switch e := env.(type) {
	case Offer:
		return frame{Type: frameOffer, From: e.From, To: e.To, SDP: e.SDP}, nil
	case Answer:
		return frame{Type: frameAnswer, From: e.From, To: e.To, SDP: e.SDP}, nil
	case Candidate:
		f := frame{Type: frameCandidate, From: e.From, To: e.To}
		if e.Candidate != nil {
			data, err := json.Marshal(e.Candidate)
			if err != nil {
				return frame{}, fmt.Errorf("encoding candidate: %w", err)
			}
			f.Candidate = string(data)
		}
		return f, nil
	case PeerAnnounced:
		return frame{Type: frameSignal, From: e.From}, nil
	case PeerLeft:
		return frame{Type: frameLeave, From: e.From}, nil
	default:
		return frame{}, fmt.Errorf("unsupported envelope %T", env)
	}
}

// fromFrame parses an inbound frame. ok is false for frames that carry no
// envelope (welcome, unknown types).
func fromFrame(f frame) (env Envelope, ok bool, err error) {
	switch f.Type {
	case frameSignal:
		return PeerAnnounced{From: f.From}, true, nil
	case frameLeave:
		return PeerLeft{From: f.From}, true, nil
	case frameOffer:
		return Offer{From: f.From, To: f.To, SDP: f.SDP}, true, nil
	case frameAnswer:
		return Answer{From: f.From, To: f.To, SDP: f.SDP}, true, nil
	case frameCandidate:
		c := Candidate{From: f.From, To: f.To}
		if f.Candidate != "" {
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(f.Candidate), &init); err != nil {
				return nil, false, fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			c.Candidate = &init
		}
		return c, true, nil
	default:
		return nil, false, nil
	}
}
