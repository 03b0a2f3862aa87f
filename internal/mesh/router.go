package mesh

import (
	"sync"

	"github.com/1ureka/mesh/internal/protocol"
	"github.com/1ureka/mesh/internal/util"
)

// Handler receives decoded application messages of one type.
type Handler func(msg protocol.Message)

// router maps message types to their handlers. Handlers for a type run in
// registration order; a panic in one does not prevent the rest.
type router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newRouter() *router {
	return &router{handlers: make(map[string][]Handler)}
}

func (r *router) on(typ string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers[typ] = append(r.handlers[typ], h)
	r.mu.Unlock()
}

// dispatch decodes data received from peerID and invokes the matching
// handlers. Malformed payloads and unknown types are dropped.
func (r *router) dispatch(peerID string, data []byte) {
	tag := util.PeerTag(peerID)

	msg, err := protocol.Decode(peerID, data)
	if err != nil {
		util.LogWarning("[%s] dropping message: %v", tag, err)
		return
	}

	r.mu.RLock()
	hs := r.handlers[msg.Type]
	r.mu.RUnlock()

	if len(hs) == 0 {
		util.LogDebug("[%s] no handler for message type %q", tag, msg.Type)
		return
	}

	for _, h := range hs {
		safeCall("message "+msg.Type, func() { h(msg) })
	}
}
