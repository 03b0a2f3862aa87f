// Package mesh keeps a full mesh of WebRTC data channels with every
// participant announced by the signaling gateway.
//
// The Orchestrator owns one connection entry per remote peer. Inbound
// envelopes are routed to the entry for their sender and processed strictly
// in order per peer; different peers negotiate concurrently. A failure is
// confined to the entry it happened on: the entry is torn down and the rest
// of the mesh is unaffected.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mesh/internal/config"
	"github.com/1ureka/mesh/internal/protocol"
	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/transport"
	"github.com/1ureka/mesh/internal/util"
)

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	// ChannelLabel labels the data channels this side creates.
	ChannelLabel string

	// MaxPendingCandidates bounds the candidates queued per peer before its
	// remote description is set. The oldest is evicted on overflow.
	MaxPendingCandidates int

	// NegotiationTimeout tears down entries that receive no remote
	// description in time. Negative disables the timeout.
	NegotiationTimeout time.Duration

	// Stats receives mesh counters. Nil disables them.
	Stats *util.Stats
}

// OptionsFromConfig derives Options from the participant configuration.
func OptionsFromConfig(cfg *config.Config, stats *util.Stats) Options {
	return Options{
		ChannelLabel:         cfg.ChannelLabel,
		MaxPendingCandidates: cfg.MaxPendingCandidates,
		NegotiationTimeout:   cfg.NegotiationTimeout.Std(),
		Stats:                stats,
	}
}

func (opts Options) withDefaults() Options {
	if opts.ChannelLabel == "" {
		opts.ChannelLabel = config.DefaultChannelLabel
	}
	if opts.MaxPendingCandidates <= 0 {
		opts.MaxPendingCandidates = config.DefaultMaxPendingCandidates
	}
	if opts.NegotiationTimeout == 0 {
		opts.NegotiationTimeout = config.DefaultNegotiationTimeout
	}
	return opts
}

// Orchestrator maintains data channels with every peer of the session.
type Orchestrator struct {
	gateway  signaling.Gateway
	sessions transport.SessionFactory
	opts     Options

	registry *registry
	router   *router

	onChannelOpen      listeners[string]
	onChannelClose     listeners[string]
	onPeerConnected    listeners[string]
	onPeerDisconnected listeners[string]

	ctx    context.Context
	cancel context.CancelFunc

	// connectMu serializes Connect calls; mu is never held while the gateway
	// resolves the identity.
	connectMu sync.Mutex

	mu       sync.Mutex
	started  bool
	closed   bool
	localID  string
	loopDone chan struct{}
}

// New creates an orchestrator. Nothing happens until Connect.
func New(gateway signaling.Gateway, sessions transport.SessionFactory, opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		gateway:  gateway,
		sessions: sessions,
		opts:     opts.withDefaults(),
		router:   newRouter(),
		ctx:      ctx,
		cancel:   cancel,

		onChannelOpen:      listeners[string]{name: "channel open"},
		onChannelClose:     listeners[string]{name: "channel close"},
		onPeerConnected:    listeners[string]{name: "peer connected"},
		onPeerDisconnected: listeners[string]{name: "peer disconnected"},
	}
	o.registry = newRegistry(o.allocEntry, o.release)
	return o
}

// Connect resolves the local identity and starts consuming signaling
// envelopes. Calling it again after success is a no-op. An identity failure
// is returned and no negotiation starts.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.connectMu.Lock()
	defer o.connectMu.Unlock()

	switch err := o.ready(); {
	case err == nil:
		return nil
	case errors.Is(err, ErrClosed):
		return err
	}

	id, err := o.gateway.LocalPeerID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve local peer id: %w", err)
	}
	if id == "" {
		return errors.New("failed to resolve local peer id: empty id")
	}

	inbox, err := o.gateway.Subscribe(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to subscribe to signaling: %w", err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.localID = id
	o.started = true
	o.loopDone = make(chan struct{})
	go o.run(id, inbox, o.loopDone)
	o.mu.Unlock()

	util.LogInfo("joined mesh as %s [%s]", id, util.PeerTag(id))
	return nil
}

// run is the dispatch loop: one envelope at a time, routed to its entry.
func (o *Orchestrator) run(localID string, inbox <-chan signaling.Envelope, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-o.ctx.Done():
			return
		case env, ok := <-inbox:
			if !ok {
				util.LogWarning("signaling stream closed")
				return
			}
			o.dispatch(localID, env)
		}
	}
}

func (o *Orchestrator) dispatch(localID string, env signaling.Envelope) {
	from := env.Sender()
	if from == "" || from == localID {
		return
	}
	tag := util.PeerTag(from)

	switch env.(type) {
	case signaling.PeerLeft:
		if e, ok := o.registry.get(from); ok {
			o.teardown(e, "peer left")
		}
		return

	case signaling.Answer:
		if _, _, err := o.registry.dispatch(from, job{env: env}, false); err != nil {
			util.LogDebug("[%s] dropping answer: %v", tag, err)
		}
		return
	}

	_, created, err := o.registry.dispatch(from, job{env: env}, true)
	if err != nil {
		util.LogError("[%s] failed to create connection entry: %v", tag, err)
		return
	}
	if created {
		util.LogDebug("[%s] connection entry created", tag)
	}
}

// allocEntry creates the entry for id and installs its session observers.
func (o *Orchestrator) allocEntry(id string) (*entry, error) {
	session, err := o.sessions.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	e := newEntry(o.ctx, id, session, o.handleEnvelope)

	session.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		e.enqueue(job{run: func(ctx context.Context) { o.emitCandidate(ctx, e, c) }})
	})
	session.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		o.connectionStateChanged(e, state)
	})
	session.OnDataChannel(func(ch transport.Channel) {
		o.adoptChannel(e, ch)
	})

	if timeout := o.opts.NegotiationTimeout; timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			if !e.hasRemoteDescription() {
				o.teardown(e, "negotiation timed out")
			}
		})
	}

	o.opts.Stats.AddPeer()
	return e, nil
}

// teardown removes e from the registry and releases it. The disconnect
// callback fires once per entry, never for superseded entries and never
// after Close.
func (o *Orchestrator) teardown(e *entry, reason string) {
	if !o.registry.remove(e.id, e) {
		return
	}
	util.LogInfo("[%s] peer removed: %s", util.PeerTag(e.id), reason)
	o.release(e)

	if !o.isClosed() {
		o.onPeerDisconnected.fire(e.id)
	}
}

func (o *Orchestrator) release(e *entry) {
	released, err := e.release()
	if !released {
		return
	}
	o.opts.Stats.RemovePeer()
	if err != nil {
		util.LogDebug("[%s] release: %v", util.PeerTag(e.id), err)
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// ready returns nil once Connect succeeded and Close has not been called.
func (o *Orchestrator) ready() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.closed:
		return ErrClosed
	case !o.started:
		return ErrNotConnected
	default:
		return nil
	}
}

// SendTo sends payload to one peer. It fails with ErrUnknownPeer when no
// entry exists and ErrChannelNotOpen when the channel is not open yet.
func (o *Orchestrator) SendTo(ctx context.Context, peerID string, payload any) error {
	if err := o.ready(); err != nil {
		return err
	}
	data, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	return o.sendTo(ctx, peerID, data)
}

func (o *Orchestrator) sendTo(ctx context.Context, peerID string, data []byte) error {
	e, ok := o.registry.get(peerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	ch, ok := e.openChannel()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotOpen, peerID)
	}
	if err := ch.Send(ctx, data); err != nil {
		if errors.Is(err, transport.ErrChannelClosed) {
			return fmt.Errorf("%w: %s", ErrChannelNotOpen, peerID)
		}
		return fmt.Errorf("failed to send to %s: %w", peerID, err)
	}
	o.opts.Stats.AddSent(len(data))
	return nil
}

// Broadcast sends payload on every open channel and returns how many peers
// it reached. Per-peer failures are logged and skipped.
func (o *Orchestrator) Broadcast(ctx context.Context, payload any) (int, error) {
	if err := o.ready(); err != nil {
		return 0, err
	}
	data, err := protocol.Encode(payload)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, pc := range o.registry.openChannels() {
		if err := pc.channel.Send(ctx, data); err != nil {
			util.LogWarning("[%s] broadcast send failed: %v", util.PeerTag(pc.id), err)
			continue
		}
		o.opts.Stats.AddSent(len(data))
		delivered++
	}
	return delivered, nil
}

// SendMessage broadcasts payload when no recipients are given and sends it to
// each listed peer otherwise. Errors for individual recipients are joined.
func (o *Orchestrator) SendMessage(ctx context.Context, payload any, to ...string) error {
	if len(to) == 0 {
		_, err := o.Broadcast(ctx, payload)
		return err
	}

	if err := o.ready(); err != nil {
		return err
	}
	data, err := protocol.Encode(payload)
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range to {
		if err := o.sendTo(ctx, id, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnMessage registers h for messages whose "type" field equals typ.
func (o *Orchestrator) OnMessage(typ string, h Handler) { o.router.on(typ, h) }

// OnChannelOpen registers a callback fired when a peer's data channel opens.
func (o *Orchestrator) OnChannelOpen(fn func(peerID string)) { o.onChannelOpen.add(fn) }

// OnChannelClose registers a callback fired when an open data channel closes.
func (o *Orchestrator) OnChannelClose(fn func(peerID string)) { o.onChannelClose.add(fn) }

// OnPeerConnected registers a callback fired when a peer's session connects.
func (o *Orchestrator) OnPeerConnected(fn func(peerID string)) { o.onPeerConnected.add(fn) }

// OnPeerDisconnected registers a callback fired when a peer's entry is removed.
func (o *Orchestrator) OnPeerDisconnected(fn func(peerID string)) { o.onPeerDisconnected.add(fn) }

// LocalID returns the local peer id, empty before Connect.
func (o *Orchestrator) LocalID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.localID
}

// Peers returns the ids of every peer with a connection entry, sorted.
func (o *Orchestrator) Peers() []string { return o.registry.ids() }

// PeerState reports the negotiation state of peerID.
func (o *Orchestrator) PeerState(peerID string) (NegotiationState, bool) {
	e, ok := o.registry.get(peerID)
	if !ok {
		return Idle, false
	}
	return e.State(), true
}

// Close tears every entry down and stops the dispatch loop. The signaling
// gateway is left to its owner.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	done := o.loopDone
	o.mu.Unlock()

	o.cancel()
	if done != nil {
		<-done
	}

	for _, e := range o.registry.closeAll() {
		o.release(e)
	}
	util.LogInfo("left mesh")
	return nil
}
