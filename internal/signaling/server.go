package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/mesh/internal/util"
)

// Relay is the WebSocket signaling relay. Every connection is a participant
// with a relay-assigned identity; joining is announced to all other members,
// and offer/answer/candidate frames are forwarded to their addressee (or to
// everyone when no addressee is set). Leaving is announced as well.
type Relay struct {
	mu      sync.RWMutex
	members map[string]*sender

	listener net.Listener
	server   *http.Server
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{members: make(map[string]*sender)}
}

// Handler returns the HTTP handler serving the relay on /ws.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.handleWS)
	return mux
}

// Start begins listening on addr (":0" picks a random port). Returns the
// bound address.
func (r *Relay) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}
	r.listener = listener
	r.server = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

// Shutdown stops accepting connections and closes every member connection.
func (r *Relay) Shutdown(ctx context.Context) error {
	var err error
	if r.server != nil {
		err = r.server.Shutdown(ctx)
	}

	r.mu.Lock()
	for id, member := range r.members {
		member.conn.Close()
		delete(r.members, id)
	}
	r.mu.Unlock()
	return err
}

// Members returns the number of connected participants.
func (r *Relay) Members() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	member := &sender{conn: conn}

	// Register before the welcome frame so that a member which has seen its
	// identity is guaranteed to receive later announcements.
	r.mu.Lock()
	r.members[id] = member
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.members, id)
		r.mu.Unlock()
		r.broadcast(id, frame{Type: frameLeave, From: id})
		util.LogInfo("[%s] peer left relay", util.PeerTag(id))
	}()

	if err := member.send(frame{Type: frameWelcome, To: id}); err != nil {
		return
	}
	util.LogInfo("[%s] peer joined relay (%d members)", util.PeerTag(id), r.Members())

	r.broadcast(id, frame{Type: frameSignal, From: id})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Type {
		case frameOffer, frameAnswer, frameCandidate:
		default:
			util.LogDebug("[%s] ignoring %q frame", util.PeerTag(id), f.Type)
			continue
		}

		// The relay is the authority on who sent a frame.
		f.From = id
		if f.To == "" {
			r.broadcast(id, f)
			continue
		}
		r.forward(f)
	}
}

// forward delivers f to its addressee, dropping it if the addressee is gone.
func (r *Relay) forward(f frame) {
	r.mu.RLock()
	target, ok := r.members[f.To]
	r.mu.RUnlock()

	if !ok {
		util.LogDebug("[%s] dropping %s for unknown peer", util.PeerTag(f.To), f.Type)
		return
	}
	if err := target.send(f); err != nil {
		util.LogWarning("[%s] relay write failed: %v", util.PeerTag(f.To), err)
	}
}

// broadcast delivers f to every member except the one identified by except.
func (r *Relay) broadcast(except string, f frame) {
	r.mu.RLock()
	targets := make([]*sender, 0, len(r.members))
	for id, member := range r.members {
		if id != except {
			targets = append(targets, member)
		}
	}
	r.mu.RUnlock()

	for _, target := range targets {
		if err := target.send(f); err != nil {
			util.LogDebug("relay broadcast write failed: %v", err)
		}
	}
}
