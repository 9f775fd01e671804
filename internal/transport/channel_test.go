package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
)

// relayStub is a minimal in-process relay: it records every frame the
// channel sends and lets tests kill connections to force reconnects.
type relayStub struct {
	srv      *httptest.Server
	received chan *protocol.Envelope

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	s := &relayStub{received: make(chan *protocol.Envelope, 64)}

	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.dials++
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			s.received <- env
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *relayStub) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *relayStub) killConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *relayStub) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// pushToClient sends a frame down the most recent connection.
func (s *relayStub) pushToClient(t *testing.T, env *protocol.Envelope) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no live connection to push to")
	}
	if err := s.conns[len(s.conns)-1].WriteJSON(env); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

func (s *relayStub) next(t *testing.T) *protocol.Envelope {
	t.Helper()
	select {
	case env := <-s.received:
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func (s *relayStub) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case env := <-s.received:
		t.Fatalf("expected no frame, got %s", env.Type)
	case <-time.After(within):
	}
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOptions(s *relayStub) Options {
	return Options{
		URL:          s.url(),
		MaxAttempts:  10,
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		PingInterval: 50 * time.Millisecond,
	}
}

func TestSendFromClosedConnectsAndDrainsInOrder(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))
	defer ch.Stop()

	ch.Send(&protocol.Envelope{Type: protocol.TypeChatMessage, Text: "m1"})
	ch.Send(&protocol.Envelope{Type: protocol.TypeChatMessage, Text: "m2"})
	ch.Send(&protocol.Envelope{Type: protocol.TypeChatMessage, Text: "m3"})

	for _, want := range []string{"m1", "m2", "m3"} {
		env := s.next(t)
		if env.Text != want {
			t.Fatalf("expected %q next, got %q", want, env.Text)
		}
	}
	if ch.QueueLen() != 0 {
		t.Errorf("expected drained queue, got %d", ch.QueueLen())
	}
}

func TestReconnectRejoinsAndRedeliversAcrossCycles(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))
	defer ch.Stop()

	ch.Send(&protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: "r1", UserID: "v1"})
	join := s.next(t)
	if join.Type != protocol.TypeJoinRoom {
		t.Fatalf("expected join-room, got %s", join.Type)
	}

	for cycle := 1; cycle <= 3; cycle++ {
		s.killConns()
		waitFor(t, 3*time.Second, "disconnect detection", func() bool {
			return ch.State() != StateOpen
		})

		// Sent while disconnected: must survive the gap exactly once.
		ch.Send(&protocol.Envelope{Type: protocol.TypeChatMessage, RoomID: "r1", Text: "hello"})

		// The remembered membership is replayed before queued traffic.
		rejoin := s.next(t)
		if rejoin.Type != protocol.TypeJoinRoom || rejoin.RoomID != "r1" || rejoin.UserID != "v1" {
			t.Fatalf("cycle %d: expected join-room replay, got %+v", cycle, rejoin)
		}
		chat := s.next(t)
		if chat.Type != protocol.TypeChatMessage || chat.Text != "hello" {
			t.Fatalf("cycle %d: expected queued chat, got %+v", cycle, chat)
		}
		s.expectNone(t, 50*time.Millisecond)
	}
}

func TestHostMembershipReplayedAsCreateRoom(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))
	defer ch.Stop()

	ch.Send(&protocol.Envelope{Type: protocol.TypeCreateRoom, RoomID: "r1", UserID: "h1"})
	if s.next(t).Type != protocol.TypeCreateRoom {
		t.Fatal("expected initial create-room")
	}

	s.killConns()
	waitFor(t, 3*time.Second, "reconnect", func() bool { return s.dialCount() >= 2 })

	replay := s.next(t)
	if replay.Type != protocol.TypeCreateRoom || replay.RoomID != "r1" {
		t.Fatalf("expected create-room replay for the host, got %+v", replay)
	}
}

func TestLeaveRoomClearsMembership(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))
	defer ch.Stop()

	ch.Send(&protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: "r1", UserID: "v1"})
	s.next(t)
	ch.Send(&protocol.Envelope{Type: protocol.TypeLeaveRoom, RoomID: "r1"})
	s.next(t)

	s.killConns()
	waitFor(t, 3*time.Second, "reconnect", func() bool { return s.dialCount() >= 2 })

	// No membership left to replay.
	s.expectNone(t, 100*time.Millisecond)
}

func TestListenersExactWildcardAndPanicIsolation(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))
	defer ch.Stop()

	var mu sync.Mutex
	var got []string
	record := func(tag string) Listener {
		return func(env *protocol.Envelope) {
			mu.Lock()
			got = append(got, tag)
			mu.Unlock()
		}
	}

	ch.On(protocol.TypeChatMessage, func(env *protocol.Envelope) {
		panic("listener bug")
	})
	ch.On(protocol.TypeChatMessage, record("exact"))
	ch.On(Wildcard, record("wildcard"))

	ch.Send(&protocol.Envelope{Type: protocol.TypePing})
	s.next(t)

	s.pushToClient(t, &protocol.Envelope{Type: protocol.TypeChatMessage, Text: "hi"})

	waitFor(t, 3*time.Second, "listener delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "exact" || got[1] != "wildcard" {
		t.Errorf("unexpected delivery order: %v", got)
	}
}

func TestStopClearsQueueAndDropsLaterSends(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))

	ch.Send(&protocol.Envelope{Type: protocol.TypePing})
	s.next(t)

	ch.Stop()
	if ch.State() != StateShuttingDown {
		t.Fatalf("expected shutting-down, got %s", ch.State())
	}

	ch.Send(&protocol.Envelope{Type: protocol.TypeChatMessage, Text: "late"})
	if ch.QueueLen() != 0 {
		t.Error("expected sends after Stop to be dropped")
	}
	s.expectNone(t, 100*time.Millisecond)
}

func TestSendAfterStopRemembersNothing(t *testing.T) {
	s := newRelayStub(t)
	ch := New(testOptions(s))

	ch.Send(&protocol.Envelope{Type: protocol.TypePing})
	s.next(t)
	ch.Stop()

	// A dropped frame must not leave membership behind in the terminal
	// state.
	ch.Send(&protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: "r1", UserID: "v1"})

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.membership != nil {
		t.Errorf("expected no membership after Stop, got %+v", ch.membership)
	}
	if ch.rejoinPending {
		t.Error("expected no pending rejoin after Stop")
	}
}

func TestStartLeavesShutdownAndAutoConnects(t *testing.T) {
	s := newRelayStub(t)
	opts := testOptions(s)
	opts.AutoConnect = true
	ch := New(opts)
	defer ch.Stop()

	ch.Start()
	waitFor(t, 3*time.Second, "initial connect", func() bool { return ch.State() == StateOpen })

	ch.Stop()
	ch.Start()
	waitFor(t, 3*time.Second, "reconnect after restart", func() bool { return ch.State() == StateOpen })
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	s := newRelayStub(t)
	s.srv.Close() // nothing listening

	opts := testOptions(s)
	opts.MaxAttempts = 2
	ch := New(opts)
	defer ch.Stop()

	ch.Send(&protocol.Envelope{Type: protocol.TypePing})

	// Both attempts fail quickly; the channel must settle in Closed
	// with the message still queued.
	time.Sleep(300 * time.Millisecond)
	if got := ch.State(); got != StateClosed {
		t.Fatalf("expected closed after giving up, got %s", got)
	}
	if ch.QueueLen() != 1 {
		t.Errorf("expected the message to stay queued, got %d", ch.QueueLen())
	}
}
