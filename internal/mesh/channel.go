package mesh

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mesh/internal/transport"
	"github.com/1ureka/mesh/internal/util"
)

// adoptChannel binds ch to the entry. An entry owns at most one channel;
// any further channel is closed.
func (o *Orchestrator) adoptChannel(e *entry, ch transport.Channel) {
	tag := util.PeerTag(e.id)

	e.mu.Lock()
	if e.closed || e.channel != nil {
		e.mu.Unlock()
		util.LogDebug("[%s] closing extra data channel %q", tag, ch.Label())
		ch.Close()
		return
	}
	e.channel = ch
	e.mu.Unlock()

	ch.OnOpen(func() { o.channelOpened(e) })
	ch.OnClose(func() { o.channelClosed(e) })
	ch.OnMessage(func(data []byte) {
		o.opts.Stats.AddRecv(len(data))
		o.router.dispatch(e.id, data)
	})
}

func (o *Orchestrator) channelOpened(e *entry) {
	e.mu.Lock()
	if e.closed || e.channelOpen {
		e.mu.Unlock()
		return
	}
	e.channelOpen = true
	e.everOpened = true
	e.mu.Unlock()

	util.LogSuccess("[%s] data channel open", util.PeerTag(e.id))
	o.onChannelOpen.fire(e.id)
}

// channelClosed removes the entry once its channel closes. The close
// callback fires only for channels that were open and only for entries that
// were not superseded.
func (o *Orchestrator) channelClosed(e *entry) {
	e.mu.Lock()
	e.channelOpen = false
	notify := e.everOpened && !e.superseded && !e.channelCloseFired
	if notify {
		e.channelCloseFired = true
	}
	e.mu.Unlock()

	o.teardown(e, "data channel closed")

	if notify && !o.isClosed() {
		util.LogInfo("[%s] data channel closed", util.PeerTag(e.id))
		o.onChannelClose.fire(e.id)
	}
}

// connectionStateChanged maps session connectivity onto the lifecycle
// callbacks.
func (o *Orchestrator) connectionStateChanged(e *entry, state webrtc.ICEConnectionState) {
	tag := util.PeerTag(e.id)
	util.LogDebug("[%s] ICE state: %s", tag, state)

	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		e.mu.Lock()
		first := !e.connected && !e.closed
		e.connected = true
		e.mu.Unlock()

		if first {
			util.LogSuccess("[%s] peer connected", tag)
			o.onPeerConnected.fire(e.id)
		}

	case webrtc.ICEConnectionStateDisconnected,
		webrtc.ICEConnectionStateFailed,
		webrtc.ICEConnectionStateClosed:
		o.teardown(e, "ICE "+state.String())
	}
}
