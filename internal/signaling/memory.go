package signaling

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Gateway = (*MemoryGateway)(nil)

// MemoryRelay is an in-process relay for tests. Gateways joined to the same
// MemoryRelay see each other's announcements and exchange envelopes without
// any network signaling, mirroring Relay semantics.
type MemoryRelay struct {
	mu      sync.Mutex
	members map[string]*MemoryGateway
}

// NewMemoryRelay creates an empty in-process relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{members: make(map[string]*MemoryGateway)}
}

// Join returns a gateway with the given identity. The participant is
// announced to the other members when it subscribes.
func (r *MemoryRelay) Join(id string) *MemoryGateway {
	return &MemoryGateway{
		relay: r,
		id:    id,
		inbox: make(chan Envelope, inboxSize),
		done:  make(chan struct{}),
	}
}

// MemoryGateway is one participant of a MemoryRelay.
type MemoryGateway struct {
	relay *MemoryRelay
	id    string

	inbox     chan Envelope
	done      chan struct{}
	leaveOnce sync.Once

	// mu orders push against closing inbox.
	mu     sync.Mutex
	closed bool
}

func (g *MemoryGateway) LocalPeerID(context.Context) (string, error) {
	return g.id, nil
}

// Subscribe registers the gateway and announces it to every other member.
func (g *MemoryGateway) Subscribe(_ context.Context, localID string) (<-chan Envelope, error) {
	r := g.relay
	r.mu.Lock()
	others := make([]*MemoryGateway, 0, len(r.members))
	for _, member := range r.members {
		others = append(others, member)
	}
	r.members[localID] = g
	r.mu.Unlock()

	for _, member := range others {
		member.push(PeerAnnounced{From: localID})
	}
	return g.inbox, nil
}

func (g *MemoryGateway) SendOffer(_ context.Context, offer Offer) error {
	offer.From = g.id
	return g.relay.forward(offer.To, offer)
}

func (g *MemoryGateway) SendAnswer(_ context.Context, answer Answer) error {
	answer.From = g.id
	return g.relay.forward(answer.To, answer)
}

func (g *MemoryGateway) SendCandidate(_ context.Context, candidate Candidate) error {
	candidate.From = g.id
	return g.relay.forward(candidate.To, candidate)
}

// Leave removes the gateway from the relay, announces the departure and
// closes its envelope stream.
func (g *MemoryGateway) Leave() {
	g.leaveOnce.Do(func() {
		r := g.relay
		r.mu.Lock()
		delete(r.members, g.id)
		others := make([]*MemoryGateway, 0, len(r.members))
		for _, member := range r.members {
			others = append(others, member)
		}
		r.mu.Unlock()

		close(g.done)
		g.mu.Lock()
		g.closed = true
		close(g.inbox)
		g.mu.Unlock()

		for _, member := range others {
			member.push(PeerLeft{From: g.id})
		}
	})
}

// push queues env unless the gateway has left.
func (g *MemoryGateway) push(env Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	select {
	case g.inbox <- env:
	case <-g.done:
	}
}

func (r *MemoryRelay) forward(to string, env Envelope) error {
	r.mu.Lock()
	target, ok := r.members[to]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	target.push(env)
	return nil
}
