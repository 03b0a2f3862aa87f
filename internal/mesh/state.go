package mesh

// NegotiationState is the offer/answer progress of one connection entry.
type NegotiationState int

const (
	// Idle is the state of a freshly created entry.
	Idle NegotiationState = iota
	// AwaitingLocalOffer means the local side is producing an offer.
	AwaitingLocalOffer
	// AwaitingRemoteAnswer means the local offer was sent.
	AwaitingRemoteAnswer
	// AwaitingRemoteOffer means the remote side is expected to offer.
	AwaitingRemoteOffer
	// Negotiated means both descriptions are in place.
	Negotiated
)

func (s NegotiationState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingLocalOffer:
		return "awaiting-local-offer"
	case AwaitingRemoteAnswer:
		return "awaiting-remote-answer"
	case AwaitingRemoteOffer:
		return "awaiting-remote-offer"
	case Negotiated:
		return "negotiated"
	default:
		return "unknown"
	}
}
