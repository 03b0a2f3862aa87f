package signaling

import (
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/mesh/internal/util"
)

// receiver reads frames from the relay and turns them into envelopes.
type receiver struct {
	conn *websocket.Conn

	// onWelcome is called with the identity assigned by the relay.
	onWelcome func(id string)

	// deliver hands a parsed envelope to the subscriber. It returns false
	// when the gateway is shutting down.
	deliver func(Envelope) bool
}

// watch runs until the connection fails or deliver refuses an envelope.
func (r *receiver) watch() error {
	for {
		var f frame
		if err := r.conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		if f.Type == frameWelcome {
			r.onWelcome(f.To)
			continue
		}

		env, ok, err := fromFrame(f)
		if err != nil {
			util.LogWarning("dropping malformed %s frame from %s: %v", f.Type, f.From, err)
			continue
		}
		if !ok {
			util.LogDebug("dropping unknown frame type %q", f.Type)
			continue
		}

		if !r.deliver(env) {
			return nil
		}
	}
}
