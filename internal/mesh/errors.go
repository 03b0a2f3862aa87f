package mesh

import "errors"

var (
	// ErrUnknownPeer is returned when addressing a peer without a registry entry.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrChannelNotOpen is returned when the peer's data channel has not
	// reached the open state (or has already closed).
	ErrChannelNotOpen = errors.New("data channel not open")

	// ErrNotConnected is returned by operations that need Connect to have
	// succeeded first.
	ErrNotConnected = errors.New("mesh not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mesh closed")
)
