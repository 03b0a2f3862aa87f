package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/mesh/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*WSGateway)(nil)

// inboxSize bounds the number of envelopes buffered before Subscribe is
// called or while the subscriber is busy.
const inboxSize = 256

// ErrGatewayClosed is returned by a gateway that has been shut down.
var ErrGatewayClosed = errors.New("signaling gateway closed")

// WSGateway is a Gateway backed by a WebSocket connection to a Relay. The
// local identity is the one the relay assigns in its welcome frame.
type WSGateway struct {
	sender *sender

	welcomed    chan struct{}
	welcomeOnce sync.Once
	localID     string

	inbox chan Envelope

	mu      sync.Mutex
	readErr error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at url and starts reading frames.
func Dial(ctx context.Context, url string) (*WSGateway, error) {
	conn, err := connect(ctx, url)
	if err != nil {
		return nil, err
	}

	g := &WSGateway{
		sender:   &sender{conn: conn},
		welcomed: make(chan struct{}),
		inbox:    make(chan Envelope, inboxSize),
		done:     make(chan struct{}),
	}

	r := &receiver{
		conn: conn,
		onWelcome: func(id string) {
			g.welcomeOnce.Do(func() {
				g.localID = id
				close(g.welcomed)
			})
		},
		deliver: g.deliver,
	}

	go func() {
		err := r.watch()
		g.mu.Lock()
		g.readErr = err
		g.mu.Unlock()
		g.Close()
		close(g.inbox)
	}()

	return g, nil
}

// deliver filters envelopes addressed to someone else and queues the rest.
func (g *WSGateway) deliver(env Envelope) bool {
	if to := addressee(env); to != "" {
		select {
		case <-g.welcomed:
			if to != g.localID {
				return true
			}
		default:
		}
	}

	select {
	case g.inbox <- env:
		return true
	case <-g.done:
		return false
	}
}

// LocalPeerID waits for the relay's welcome frame.
func (g *WSGateway) LocalPeerID(ctx context.Context) (string, error) {
	select {
	case <-g.welcomed:
		if g.localID == "" {
			return "", errors.New("relay assigned an empty identity")
		}
		return g.localID, nil
	case <-g.done:
		return "", g.closeReason()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe returns the envelope stream. The relay scopes frames to this
// connection, so localID is only used to drop misaddressed envelopes.
func (g *WSGateway) Subscribe(ctx context.Context, localID string) (<-chan Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	util.LogDebug("subscribed to relay as %s", localID)
	return g.inbox, nil
}

func (g *WSGateway) SendOffer(_ context.Context, offer Offer) error {
	return g.send(offer)
}

func (g *WSGateway) SendAnswer(_ context.Context, answer Answer) error {
	return g.send(answer)
}

func (g *WSGateway) SendCandidate(_ context.Context, candidate Candidate) error {
	return g.send(candidate)
}

func (g *WSGateway) send(env Envelope) error {
	select {
	case <-g.done:
		return ErrGatewayClosed
	default:
	}
	return g.sender.sendEnvelope(env)
}

// Done returns a channel that is closed when the relay connection is gone.
func (g *WSGateway) Done() <-chan struct{} {
	return g.done
}

// Close shuts the relay connection down. Safe to call multiple times.
func (g *WSGateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		err = g.sender.conn.Close()
	})
	return err
}

func (g *WSGateway) closeReason() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return g.readErr
	}
	return ErrGatewayClosed
}

// addressee returns the explicit recipient of env, if any.
func addressee(env Envelope) string {
	switch e := env.(type) {
	case Offer:
		return e.To
	case Answer:
		return e.To
	case Candidate:
		return e.To
	default:
		return ""
	}
}
