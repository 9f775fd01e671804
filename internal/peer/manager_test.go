package peer

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
)

// fakeSignaler records everything the orchestrator relays.
type fakeSignaler struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
}

func (f *fakeSignaler) Send(env *protocol.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
}

func (f *fakeSignaler) byType(msgType string) []*protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*protocol.Envelope
	for _, env := range f.sent {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

// makeOffer builds a real SDP offer the way a broadcasting host would.
func makeOffer(t *testing.T) (*webrtc.PeerConnection, json.RawMessage) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("create peer connection: %v", err)
	}
	if _, err := pc.CreateDataChannel(chatChannelLabel, nil); err != nil {
		t.Fatalf("create data channel: %v", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local description: %v", err)
	}
	data, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		t.Fatalf("marshal offer: %v", err)
	}
	return pc, data
}

func videoTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "watchtogether",
	)
	if err != nil {
		t.Fatalf("create track: %v", err)
	}
	return track
}

const candidateJSON = `{"candidate":"candidate:1 1 UDP 2122252543 127.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`

func TestViewerAnswersOffer(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleViewer, "v1", "alice", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	hostPC, offer := makeOffer(t)
	defer hostPC.Close()

	if err := m.HandleOffer("h1", offer); err != nil {
		t.Fatalf("HandleOffer failed: %v", err)
	}

	answers := sig.byType(protocol.TypeAnswer)
	if len(answers) != 1 {
		t.Fatalf("expected exactly one answer, got %d", len(answers))
	}
	if answers[0].TargetID != "h1" || answers[0].RoomID != "r1" || answers[0].UserID != "v1" {
		t.Errorf("answer badly addressed: %+v", answers[0])
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answers[0].Data, &desc); err != nil {
		t.Fatalf("answer payload is not a session description: %v", err)
	}
	if desc.Type != webrtc.SDPTypeAnswer {
		t.Errorf("expected an SDP answer, got %s", desc.Type)
	}
}

func TestDuplicateOfferIgnoredWhileNegotiating(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleViewer, "v1", "alice", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	hostPC, offer := makeOffer(t)
	defer hostPC.Close()

	if err := m.HandleOffer("h1", offer); err != nil {
		t.Fatalf("first offer failed: %v", err)
	}
	if err := m.HandleOffer("h1", offer); err != nil {
		t.Fatalf("duplicate offer should be ignored, got %v", err)
	}

	if got := len(sig.byType(protocol.TypeAnswer)); got != 1 {
		t.Errorf("expected one answer despite duplicate offer, got %d", got)
	}
}

func TestHostOfferRequiresSharing(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleHost, "h1", "host", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	err := m.HandleViewerJoined("v1")
	if !errors.Is(err, ErrSharingNotStarted) {
		t.Fatalf("expected ErrSharingNotStarted, got %v", err)
	}
	if len(sig.byType(protocol.TypeOffer)) != 0 {
		t.Error("no offer may be sent before sharing starts")
	}
}

func TestHostOffersNewViewer(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleHost, "h1", "host", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	m.StartSharing(NewStaticSource(videoTrack(t)))

	if err := m.HandleViewerJoined("v1"); err != nil {
		t.Fatalf("HandleViewerJoined failed: %v", err)
	}

	offers := sig.byType(protocol.TypeOffer)
	if len(offers) != 1 {
		t.Fatalf("expected one offer, got %d", len(offers))
	}
	if offers[0].TargetID != "v1" || offers[0].UserID != "h1" {
		t.Errorf("offer badly addressed: %+v", offers[0])
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleHost, "h1", "host", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	m.StartSharing(NewStaticSource(videoTrack(t)))
	if err := m.HandleViewerJoined("v1"); err != nil {
		t.Fatalf("HandleViewerJoined failed: %v", err)
	}

	// Candidate arrives before the viewer's answer: it must be
	// buffered, not applied.
	if err := m.HandleCandidate("v1", json.RawMessage(candidateJSON)); err != nil {
		t.Fatalf("HandleCandidate failed: %v", err)
	}

	m.mu.Lock()
	p := m.peers["v1"]
	pendingBefore := len(p.pending)
	remoteSet := p.remoteSet
	m.mu.Unlock()
	if remoteSet {
		t.Fatal("remote description should not be set yet")
	}
	if pendingBefore != 1 {
		t.Fatalf("expected 1 buffered candidate, got %d", pendingBefore)
	}

	// Build a real answer from the relayed offer and apply it.
	offers := sig.byType(protocol.TypeOffer)
	var offerDesc webrtc.SessionDescription
	if err := json.Unmarshal(offers[0].Data, &offerDesc); err != nil {
		t.Fatalf("offer payload invalid: %v", err)
	}

	viewerPC, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("create viewer pc: %v", err)
	}
	defer viewerPC.Close()
	if err := viewerPC.SetRemoteDescription(offerDesc); err != nil {
		t.Fatalf("viewer set remote: %v", err)
	}
	answer, err := viewerPC.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("viewer create answer: %v", err)
	}
	if err := viewerPC.SetLocalDescription(answer); err != nil {
		t.Fatalf("viewer set local: %v", err)
	}
	answerData, _ := json.Marshal(viewerPC.LocalDescription())

	if err := m.HandleAnswer("v1", answerData); err != nil {
		t.Fatalf("HandleAnswer failed: %v", err)
	}

	m.mu.Lock()
	pendingAfter := len(p.pending)
	remoteSet = p.remoteSet
	m.mu.Unlock()
	if !remoteSet {
		t.Error("remote description should be set after the answer")
	}
	if pendingAfter != 0 {
		t.Errorf("expected buffered candidates flushed, got %d left", pendingAfter)
	}
}

func TestCandidateForUnknownPeerDropped(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleViewer, "v1", "alice", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	if err := m.HandleCandidate("ghost", json.RawMessage(candidateJSON)); err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
	if len(m.Peers()) != 0 {
		t.Error("dropping a candidate must not create a peer record")
	}
}

func TestAnswerFromUnknownPeerDropped(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleHost, "h1", "host", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`)
	if err := m.HandleAnswer("ghost", answer); err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
}

func TestSendChatWithoutOpenChannelReportsFailure(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleViewer, "v1", "alice", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	err := m.SendChat("hello")
	if !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("expected ErrChannelNotOpen, got %v", err)
	}
}

func TestClosePeerRemovesRecord(t *testing.T) {
	sig := &fakeSignaler{}
	m := NewManager(protocol.RoleViewer, "v1", "alice", "r1", sig, nil, Callbacks{})
	defer m.CloseAll()

	hostPC, offer := makeOffer(t)
	defer hostPC.Close()

	if err := m.HandleOffer("h1", offer); err != nil {
		t.Fatalf("HandleOffer failed: %v", err)
	}
	if len(m.Peers()) != 1 {
		t.Fatalf("expected one peer, got %d", len(m.Peers()))
	}

	m.ClosePeer("h1")
	if len(m.Peers()) != 0 {
		t.Error("expected peer record removed")
	}
}

func TestChatFrameRoundTrip(t *testing.T) {
	data, err := encodeChat("v1", "alice", "hello")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	chat, err := decodeChat(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if chat.UserID != "v1" || chat.Username != "alice" || chat.Text != "hello" {
		t.Errorf("round trip mangled the frame: %+v", chat)
	}
	if chat.SentAt == 0 {
		t.Error("expected a send timestamp")
	}
}
