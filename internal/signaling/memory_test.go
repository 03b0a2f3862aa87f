package signaling

import (
	"context"
	"testing"
)

func TestMemoryRelay(t *testing.T) {
	ctx := context.Background()
	relay := NewMemoryRelay()

	a := relay.Join("alpha")
	inboxA, err := a.Subscribe(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}

	b := relay.Join("beta")
	if id, _ := b.LocalPeerID(ctx); id != "beta" {
		t.Fatalf("LocalPeerID = %q, want beta", id)
	}
	inboxB, err := b.Subscribe(ctx, "beta")
	if err != nil {
		t.Fatal(err)
	}

	if env, ok := next(t, inboxA).(PeerAnnounced); !ok || env.From != "beta" {
		t.Fatalf("alpha got %+v, want PeerAnnounced from beta", env)
	}

	if err := a.SendOffer(ctx, Offer{To: "beta", SDP: "sdp"}); err != nil {
		t.Fatal(err)
	}
	if env, ok := next(t, inboxB).(Offer); !ok || env.From != "alpha" {
		t.Fatalf("beta got %+v, want offer from alpha", env)
	}

	// Unknown addressees are dropped silently.
	if err := a.SendAnswer(ctx, Answer{To: "gamma"}); err != nil {
		t.Fatal(err)
	}

	b.Leave()
	b.Leave()
	if env, ok := next(t, inboxA).(PeerLeft); !ok || env.From != "beta" {
		t.Fatalf("alpha got %+v, want PeerLeft from beta", env)
	}
	if _, ok := <-inboxB; ok {
		t.Error("beta's stream still open after Leave")
	}
}
