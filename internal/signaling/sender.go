package signaling

import (
	"sync"

	"github.com/gorilla/websocket"
)

// sender serializes outgoing frames to a WebSocket (private). gorilla
// connections support one concurrent writer only.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a frame to the WebSocket, guarded by a mutex.
func (s *sender) send(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(f)
}

// sendEnvelope serializes env and writes it.
func (s *sender) sendEnvelope(env Envelope) error {
	f, err := toFrame(env)
	if err != nil {
		return err
	}
	return s.send(f)
}
