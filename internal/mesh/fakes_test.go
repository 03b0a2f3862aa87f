package mesh

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mesh/internal/signaling"
	"github.com/1ureka/mesh/internal/transport"
)

// remoteSDP is a minimal description negotiating a data channel.
const remoteSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sctp-port:5000\r\n"

func hostCandidate(port int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 192.168.1.2 " + strconv.Itoa(port) + " typ host",
	}
}

// ---------------------------------------------------------------------------
// Fake transport
// ---------------------------------------------------------------------------

type fakeChannel struct {
	label string

	mu        sync.Mutex
	open      bool
	closed    bool
	sent      [][]byte
	onOpen    func()
	onClose   func()
	onMessage func([]byte)
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return transport.ErrChannelClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) OnOpen(fn func())          { c.mu.Lock(); c.onOpen = fn; c.mu.Unlock() }
func (c *fakeChannel) OnClose(fn func())         { c.mu.Lock(); c.onClose = fn; c.mu.Unlock() }
func (c *fakeChannel) OnMessage(fn func([]byte)) { c.mu.Lock(); c.onMessage = fn; c.mu.Unlock() }

// Open simulates the remote completing the channel handshake.
func (c *fakeChannel) Open() {
	c.mu.Lock()
	c.open = true
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Receive simulates an inbound message.
func (c *fakeChannel) Receive(data string) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn([]byte(data))
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (c *fakeChannel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSession struct {
	mu         sync.Mutex
	calls      []string
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	channels   []*fakeChannel
	closed     bool

	failRemote error

	onCandidate func(*webrtc.ICECandidateInit)
	onState     func(webrtc.ICEConnectionState)
	onChannel   func(transport.Channel)
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeSession) CreateOffer() (webrtc.SessionDescription, error) {
	s.record("create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (s *fakeSession) CreateAnswer() (webrtc.SessionDescription, error) {
	s.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (s *fakeSession) SetLocalDescription(desc webrtc.SessionDescription) error {
	s.record("local-" + desc.Type.String())
	return nil
}

func (s *fakeSession) SetRemoteDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemote != nil {
		return s.failRemote
	}
	s.calls = append(s.calls, "remote-"+desc.Type.String())
	s.remote = append(s.remote, desc)
	return nil
}

func (s *fakeSession) AddICECandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "candidate")
	s.candidates = append(s.candidates, c)
	return nil
}

func (s *fakeSession) CreateDataChannel(label string) (transport.Channel, error) {
	ch := &fakeChannel{label: label}
	s.mu.Lock()
	s.channels = append(s.channels, ch)
	s.mu.Unlock()
	return ch, nil
}

func (s *fakeSession) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	s.mu.Lock()
	s.onCandidate = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnDataChannel(fn func(transport.Channel)) {
	s.mu.Lock()
	s.onChannel = fn
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// RemoteChannel simulates the remote opening a data channel.
func (s *fakeSession) RemoteChannel(label string) *fakeChannel {
	ch := &fakeChannel{label: label}
	s.mu.Lock()
	fn := s.onChannel
	s.mu.Unlock()
	fn(ch)
	return ch
}

func (s *fakeSession) SetState(state webrtc.ICEConnectionState) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	fn(state)
}

func (s *fakeSession) EmitCandidate(c *webrtc.ICECandidateInit) {
	s.mu.Lock()
	fn := s.onCandidate
	s.mu.Unlock()
	fn(c)
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) Candidates() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), s.candidates...)
}

func (s *fakeSession) RemoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remote)
}

func (s *fakeSession) Channels() []*fakeChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeChannel(nil), s.channels...)
}

func (s *fakeSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession

	// prepare, if set, adjusts each session before it is handed out.
	prepare func(n int, s *fakeSession)
}

func (f *fakeFactory) NewSession() (transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{}
	if f.prepare != nil {
		f.prepare(len(f.sessions), s)
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) Session(t *testing.T, i int) *fakeSession {
	t.Helper()
	waitFor(t, "session allocation", func() bool { return f.Count() > i })
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

// ---------------------------------------------------------------------------
// Fake signaling
// ---------------------------------------------------------------------------

type fakeGateway struct {
	id    string
	idErr error

	inbox chan signaling.Envelope
	sent  chan signaling.Envelope

	// block, if set, holds LocalPeerID until it is closed; entered is
	// signalled when LocalPeerID starts waiting.
	block   chan struct{}
	entered chan struct{}

	mu         sync.Mutex
	subscribes int
	sendErr    error
}

func newFakeGateway(id string) *fakeGateway {
	return &fakeGateway{
		id:    id,
		inbox: make(chan signaling.Envelope, 64),
		sent:  make(chan signaling.Envelope, 64),
	}
}

func (g *fakeGateway) LocalPeerID(ctx context.Context) (string, error) {
	if g.block != nil {
		close(g.entered)
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.idErr != nil {
		return "", g.idErr
	}
	return g.id, nil
}

func (g *fakeGateway) Subscribe(context.Context, string) (<-chan signaling.Envelope, error) {
	g.mu.Lock()
	g.subscribes++
	g.mu.Unlock()
	return g.inbox, nil
}

func (g *fakeGateway) SendOffer(_ context.Context, offer signaling.Offer) error {
	if err := g.getSendErr(); err != nil {
		return err
	}
	g.sent <- offer
	return nil
}

func (g *fakeGateway) SendAnswer(_ context.Context, answer signaling.Answer) error {
	if err := g.getSendErr(); err != nil {
		return err
	}
	g.sent <- answer
	return nil
}

func (g *fakeGateway) SendCandidate(_ context.Context, candidate signaling.Candidate) error {
	if err := g.getSendErr(); err != nil {
		return err
	}
	g.sent <- candidate
	return nil
}

func (g *fakeGateway) setSendErr(err error) {
	g.mu.Lock()
	g.sendErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) getSendErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sendErr
}

func (g *fakeGateway) Subscribes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribes
}

func (g *fakeGateway) push(env signaling.Envelope) { g.inbox <- env }

// next waits for the next envelope the orchestrator sent.
func (g *fakeGateway) next(t *testing.T) signaling.Envelope {
	t.Helper()
	select {
	case env := <-g.sent:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound envelope")
		return nil
	}
}

// expectQuiet fails if anything was sent.
func (g *fakeGateway) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case env := <-g.sent:
		t.Fatalf("unexpected outbound envelope %T %+v", env, env)
	default:
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// recorder collects lifecycle callback arguments.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newTestMesh(t *testing.T, localID string, opts Options) (*Orchestrator, *fakeGateway, *fakeFactory) {
	t.Helper()
	gw := newFakeGateway(localID)
	factory := &fakeFactory{}
	o := New(gw, factory, opts)
	if err := o.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o, gw, factory
}

func stateIs(o *Orchestrator, id string, want NegotiationState) func() bool {
	return func() bool {
		s, ok := o.PeerState(id)
		return ok && s == want
	}
}

func gone(o *Orchestrator, id string) func() bool {
	return func() bool {
		_, ok := o.PeerState(id)
		return !ok
	}
}

var errBoom = errors.New("boom")

type failingFactory struct{}

func (failingFactory) NewSession() (transport.Session, error) { return nil, errBoom }

// testContext returns a context canceled when the test finishes, standing in
// for testing.T.Context on toolchains older than Go 1.24.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
