package transport

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// ValidateDescription parses a remote session description and checks that it
// negotiates a data channel. Malformed descriptions are rejected before they
// reach the engine so the failure can be attributed to the remote peer.
func ValidateDescription(raw string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}

	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media == "application" {
			return nil
		}
	}
	return fmt.Errorf("%w: no application media section", ErrInvalidDescription)
}

// ValidateCandidate parses a remote ICE candidate. Candidates that arrive
// before the remote description are queued, so they are checked on arrival
// rather than when they are finally applied.
func ValidateCandidate(candidate webrtc.ICECandidateInit) error {
	raw := strings.TrimPrefix(candidate.Candidate, "candidate:")
	if raw == "" {
		return fmt.Errorf("%w: empty candidate", ErrInvalidCandidate)
	}
	if _, err := ice.UnmarshalCandidate(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	return nil
}
