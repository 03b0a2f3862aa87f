package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/1ureka/mesh/internal/protocol"
	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/transport"
)

// TestMeshOverLoopback runs two orchestrators on real pion sessions joined by
// an in-process relay and exchanges a message over the negotiated channel.
func TestMeshOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC loopback test in short mode")
	}

	relay := signaling.NewMemoryRelay()
	engine := transport.NewEngine(transport.EngineConfig{IncludeLoopback: true})

	alpha := New(relay.Join("alpha"), engine, Options{})
	beta := New(relay.Join("beta"), engine, Options{})
	defer alpha.Close()
	defer beta.Close()

	alphaOpen := make(chan string, 1)
	betaOpen := make(chan string, 1)
	alpha.OnChannelOpen(func(id string) { alphaOpen <- id })
	beta.OnChannelOpen(func(id string) { betaOpen <- id })

	received := make(chan protocol.Message, 1)
	alpha.OnMessage("chat", func(m protocol.Message) { received <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := alpha.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := beta.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	for _, c := range []struct {
		ch   chan string
		want string
	}{{alphaOpen, "beta"}, {betaOpen, "alpha"}} {
		select {
		case id := <-c.ch:
			if id != c.want {
				t.Fatalf("channel opened for %q, want %q", id, c.want)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for channel to %s", c.want)
		}
	}

	if err := beta.SendTo(ctx, "alpha", chat{Type: "chat", Text: "hello"}); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case m := <-received:
		var c chat
		if err := m.Decode(&c); err != nil {
			t.Fatal(err)
		}
		if m.From != "beta" || c.Text != "hello" {
			t.Errorf("received %+v from %q", c, m.From)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}

	if n, err := alpha.Broadcast(ctx, chat{Type: "chat", Text: "all"}); err != nil || n != 1 {
		t.Errorf("Broadcast = %d, %v; want 1", n, err)
	}
}
