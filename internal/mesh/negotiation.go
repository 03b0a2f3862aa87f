package mesh

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/transport"
	"github.com/1ureka/mesh/internal/util"
)

// handleEnvelope runs one inbound envelope on the entry's worker.
func (o *Orchestrator) handleEnvelope(e *entry, env signaling.Envelope) {
	if e.ctx.Err() != nil {
		return
	}

	switch env := env.(type) {
	case signaling.PeerAnnounced:
		o.handleAnnounce(e)
	case signaling.Offer:
		o.handleOffer(e, env)
	case signaling.Answer:
		o.handleAnswer(e, env)
	case signaling.Candidate:
		o.handleCandidate(e, env)
	}
}

// handleAnnounce makes the local side the offerer towards a newly announced
// peer: create the data channel, create and apply the offer, send it.
func (o *Orchestrator) handleAnnounce(e *entry) {
	tag := util.PeerTag(e.id)
	if !e.transition(Idle, AwaitingLocalOffer) {
		util.LogDebug("[%s] ignoring announcement in state %s", tag, e.State())
		return
	}

	ch, err := e.session.CreateDataChannel(o.opts.ChannelLabel)
	if err != nil {
		o.fail(e, "create data channel", err)
		return
	}
	o.adoptChannel(e, ch)

	offer, err := e.session.CreateOffer()
	if err != nil {
		o.fail(e, "create offer", err)
		return
	}
	if e.ctx.Err() != nil {
		return
	}
	if err := e.session.SetLocalDescription(offer); err != nil {
		o.fail(e, "set local offer", err)
		return
	}
	if e.ctx.Err() != nil {
		return
	}

	e.setState(AwaitingRemoteAnswer)
	if err := o.gateway.SendOffer(e.ctx, signaling.Offer{From: o.localID, To: e.id, SDP: offer.SDP}); err != nil {
		o.fail(e, "send offer", err)
		return
	}
	util.LogDebug("[%s] offer sent", tag)
}

func (o *Orchestrator) handleOffer(e *entry, offer signaling.Offer) {
	tag := util.PeerTag(e.id)

	if e.hasRemoteDescription() {
		util.LogDebug("[%s] dropping duplicate offer", tag)
		return
	}

	if e.State() == AwaitingRemoteAnswer {
		o.resolveGlare(e, offer)
		return
	}

	o.answerOffer(e, offer)
}

// resolveGlare settles two simultaneous offers. The peer with the smaller id
// keeps its offer; the other side discards its own attempt and answers.
func (o *Orchestrator) resolveGlare(e *entry, offer signaling.Offer) {
	tag := util.PeerTag(e.id)

	if o.localID < e.id {
		util.LogDebug("[%s] glare: keeping local offer", tag)
		return
	}

	util.LogDebug("[%s] glare: yielding to remote offer", tag)
	fresh, err := o.registry.replace(e, job{env: offer})
	if err != nil {
		if err != errSuperseded {
			o.fail(e, "replace session", err)
		}
		return
	}
	o.release(e)
	util.LogDebug("[%s] session replaced (%s)", tag, fresh.State())
}

func (o *Orchestrator) answerOffer(e *entry, offer signaling.Offer) {
	tag := util.PeerTag(e.id)

	if err := transport.ValidateDescription(offer.SDP); err != nil {
		o.fail(e, "validate offer", err)
		return
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := e.session.SetRemoteDescription(desc); err != nil {
		o.fail(e, "set remote offer", err)
		return
	}
	if !o.flushPending(e) {
		return
	}

	answer, err := e.session.CreateAnswer()
	if err != nil {
		o.fail(e, "create answer", err)
		return
	}
	if e.ctx.Err() != nil {
		return
	}
	if err := e.session.SetLocalDescription(answer); err != nil {
		o.fail(e, "set local answer", err)
		return
	}
	if e.ctx.Err() != nil {
		return
	}

	e.setState(Negotiated)
	if err := o.gateway.SendAnswer(e.ctx, signaling.Answer{From: o.localID, To: e.id, SDP: answer.SDP}); err != nil {
		o.fail(e, "send answer", err)
		return
	}
	util.LogDebug("[%s] answer sent", tag)
}

func (o *Orchestrator) handleAnswer(e *entry, answer signaling.Answer) {
	tag := util.PeerTag(e.id)

	if e.State() != AwaitingRemoteAnswer || e.hasRemoteDescription() {
		util.LogDebug("[%s] dropping answer in state %s", tag, e.State())
		return
	}

	if err := transport.ValidateDescription(answer.SDP); err != nil {
		o.fail(e, "validate answer", err)
		return
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	if err := e.session.SetRemoteDescription(desc); err != nil {
		o.fail(e, "set remote answer", err)
		return
	}
	if !o.flushPending(e) {
		return
	}

	e.setState(Negotiated)
	util.LogDebug("[%s] negotiated", tag)
}

func (o *Orchestrator) handleCandidate(e *entry, msg signaling.Candidate) {
	tag := util.PeerTag(e.id)

	// A candidate can arrive before the offer it belongs to.
	e.transition(Idle, AwaitingRemoteOffer)

	if isEndOfCandidates(msg.Candidate) {
		util.LogDebug("[%s] remote finished gathering candidates", tag)
		return
	}
	candidate := *msg.Candidate

	if err := transport.ValidateCandidate(candidate); err != nil {
		o.fail(e, "validate candidate", err)
		return
	}

	queued, evicted := e.queueCandidate(candidate, o.opts.MaxPendingCandidates)
	if evicted {
		util.LogWarning("[%s] pending candidate queue full (%d), dropped the oldest", tag, o.opts.MaxPendingCandidates)
	}
	if queued {
		return
	}

	if err := e.session.AddICECandidate(candidate); err != nil {
		o.fail(e, "add candidate", err)
	}
}

// isEndOfCandidates reports whether c is the end-of-candidates marker: nil,
// or a candidate with an empty candidate line (the browser form, which may
// still carry sdpMid).
func isEndOfCandidates(c *webrtc.ICECandidateInit) bool {
	return c == nil || strings.TrimSpace(strings.TrimPrefix(c.Candidate, "candidate:")) == ""
}

// flushPending marks the remote description as set and applies the queued
// candidates in arrival order. It reports false if the entry was torn down.
func (o *Orchestrator) flushPending(e *entry) bool {
	for _, candidate := range e.markRemoteDescription() {
		if e.ctx.Err() != nil {
			return false
		}
		if err := e.session.AddICECandidate(candidate); err != nil {
			o.fail(e, "add queued candidate", err)
			return false
		}
	}
	return e.ctx.Err() == nil
}

// emitCandidate forwards a locally gathered candidate. A nil candidate is
// forwarded as the end-of-candidates marker.
func (o *Orchestrator) emitCandidate(ctx context.Context, e *entry, candidate *webrtc.ICECandidateInit) {
	if ctx.Err() != nil {
		return
	}
	msg := signaling.Candidate{From: o.localID, To: e.id, Candidate: candidate}
	if err := o.gateway.SendCandidate(ctx, msg); err != nil {
		util.LogWarning("[%s] failed to send candidate: %v", util.PeerTag(e.id), err)
	}
}

// fail tears the entry down after a negotiation step failed. No retry.
func (o *Orchestrator) fail(e *entry, step string, err error) {
	if e.ctx.Err() != nil {
		return
	}
	o.teardown(e, fmt.Sprintf("%s: %v", step, err))
}
