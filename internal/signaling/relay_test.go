package signaling

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func relayURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// next waits for the next envelope on ch.
func next(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatal("envelope stream closed")
		}
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

func dialAndSubscribe(t *testing.T, ctx context.Context, url string) (*WSGateway, string, <-chan Envelope) {
	t.Helper()
	g, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	id, err := g.LocalPeerID(ctx)
	if err != nil {
		t.Fatalf("LocalPeerID: %v", err)
	}
	inbox, err := g.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return g, id, inbox
}

// TestRelayAnnounceForwardLeave walks a two-member session through the relay:
// the earlier member is told about the newcomer, targeted frames reach only
// their addressee, and leaving is announced.
func TestRelayAnnounceForwardLeave(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, idA, inboxA := dialAndSubscribe(t, ctx, relayURL(srv))
	defer a.Close()
	b, idB, inboxB := dialAndSubscribe(t, ctx, relayURL(srv))

	if idA == idB {
		t.Fatalf("relay assigned the same identity twice: %s", idA)
	}

	announced, ok := next(t, inboxA).(PeerAnnounced)
	if !ok || announced.From != idB {
		t.Fatalf("A got %+v, want PeerAnnounced from B", announced)
	}

	if err := a.SendOffer(ctx, Offer{From: idA, To: idB, SDP: "offer-sdp"}); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	offer, ok := next(t, inboxB).(Offer)
	if !ok || offer.From != idA || offer.SDP != "offer-sdp" {
		t.Fatalf("B got %+v, want offer from A", offer)
	}

	// The relay overrides a spoofed sender.
	candidate := &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 9 typ host"}
	if err := b.SendCandidate(ctx, Candidate{From: "spoofed", To: idA, Candidate: candidate}); err != nil {
		t.Fatalf("SendCandidate: %v", err)
	}
	got, ok := next(t, inboxA).(Candidate)
	if !ok || got.From != idB || got.Candidate == nil || got.Candidate.Candidate != candidate.Candidate {
		t.Fatalf("A got %+v, want candidate from B", got)
	}

	if err := b.SendCandidate(ctx, Candidate{To: idA}); err != nil {
		t.Fatalf("SendCandidate(end): %v", err)
	}
	if end, ok := next(t, inboxA).(Candidate); !ok || end.Candidate != nil {
		t.Fatalf("A got %+v, want end-of-candidates marker", end)
	}

	b.Close()
	left, ok := next(t, inboxA).(PeerLeft)
	if !ok || left.From != idB {
		t.Fatalf("A got %+v, want PeerLeft from B", left)
	}

	if err := b.SendOffer(ctx, Offer{To: idA}); err != ErrGatewayClosed {
		t.Errorf("send after Close = %v, want ErrGatewayClosed", err)
	}
}

func TestRelayStartShutdown(t *testing.T) {
	relay := NewRelay()
	addr, err := relay.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, err := Dial(ctx, "ws://"+addr.String()+"/ws")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := g.LocalPeerID(ctx); err != nil {
		t.Fatalf("LocalPeerID: %v", err)
	}
	if relay.Members() != 1 {
		t.Errorf("Members() = %d, want 1", relay.Members())
	}

	if err := relay.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-g.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("gateway not closed after relay shutdown")
	}
}
