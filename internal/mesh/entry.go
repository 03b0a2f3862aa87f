package mesh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/transport"
)

// job is one unit of work on an entry's queue: either an inbound envelope or
// local work bound to the entry's session.
type job struct {
	env signaling.Envelope
	run func(ctx context.Context)
}

// entry is the connection state towards one remote peer. The session is
// fixed for the entry's lifetime; glare resolution replaces the whole entry.
//
// Jobs run strictly in FIFO order on at most one goroutine at a time, so the
// negotiation steps of one peer never interleave while different peers
// progress concurrently.
type entry struct {
	id      string
	session transport.Session

	ctx    context.Context
	cancel context.CancelFunc

	// handle processes inbound envelopes taken from the queue.
	handle func(*entry, signaling.Envelope)

	timer *time.Timer

	mu                   sync.Mutex
	state                NegotiationState
	channel              transport.Channel
	channelOpen          bool
	everOpened           bool
	channelCloseFired    bool
	remoteDescriptionSet bool
	pending              []webrtc.ICECandidateInit
	connected            bool
	superseded           bool

	queue   []job
	running bool
	closed  bool

	releaseOnce sync.Once
}

func newEntry(parent context.Context, id string, session transport.Session, handle func(*entry, signaling.Envelope)) *entry {
	ctx, cancel := context.WithCancel(parent)
	return &entry{
		id:      id,
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		handle:  handle,
	}
}

// enqueue appends jobs to the work queue, starting the worker if idle. Jobs for
// a closed entry are dropped.
func (e *entry) enqueue(jobs ...job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.queue = append(e.queue, jobs...)
	if !e.running && len(e.queue) > 0 {
		e.running = true
		go e.drain()
	}
	return true
}

func (e *entry) drain() {
	for {
		e.mu.Lock()
		if e.closed || len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		j := e.queue[0]
		e.queue[0] = job{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		switch {
		case j.env != nil:
			e.handle(e, j.env)
		case j.run != nil:
			j.run(e.ctx)
		}
	}
}

// supersede closes the entry for new work and hands back the inbound
// envelopes it had not processed yet.
func (e *entry) supersede() []job {
	e.mu.Lock()
	defer e.mu.Unlock()

	var inbound []job
	for _, j := range e.queue {
		if j.env != nil {
			inbound = append(inbound, j)
		}
	}
	e.superseded = true
	e.closed = true
	e.queue = nil
	return inbound
}

// release cancels in-flight work, drops queued work and pending candidates,
// and closes the channel and the session. Only the first call does anything;
// it reports whether it was that call.
func (e *entry) release() (bool, error) {
	released := false
	var err error

	e.releaseOnce.Do(func() {
		released = true
		e.cancel()
		if e.timer != nil {
			e.timer.Stop()
		}

		e.mu.Lock()
		e.closed = true
		e.queue = nil
		e.pending = nil
		e.channelOpen = false
		ch := e.channel
		e.mu.Unlock()

		var chErr error
		if ch != nil {
			chErr = ch.Close()
		}
		err = errors.Join(chErr, e.session.Close())
	})

	return released, err
}

func (e *entry) State() NegotiationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *entry) setState(s NegotiationState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// transition moves the entry from one state to another, reporting whether
// the entry was in the expected state.
func (e *entry) transition(from, to NegotiationState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != from {
		return false
	}
	e.state = to
	return true
}

func (e *entry) hasRemoteDescription() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteDescriptionSet
}

// markRemoteDescription records that the remote description is in place and
// returns the queued candidates in arrival order.
func (e *entry) markRemoteDescription() []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteDescriptionSet = true
	pending := e.pending
	e.pending = nil
	return pending
}

// queueCandidate stores c until the remote description is set. The queue
// is bounded by limit; when full the oldest candidate is evicted and
// returned with evicted set.
func (e *entry) queueCandidate(c webrtc.ICECandidateInit, limit int) (queued bool, evicted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remoteDescriptionSet {
		return false, false
	}
	if limit > 0 && len(e.pending) >= limit {
		copy(e.pending, e.pending[1:])
		e.pending = e.pending[:len(e.pending)-1]
		evicted = true
	}
	e.pending = append(e.pending, c)
	return true, evicted
}

// openChannel returns the channel if it is open.
func (e *entry) openChannel() (transport.Channel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.channelOpen || e.channel == nil {
		return nil, false
	}
	return e.channel, true
}
