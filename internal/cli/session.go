package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/aashish-nayak/WatchTOgather/internal/config"
	"github.com/aashish-nayak/WatchTOgather/internal/peer"
	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
	"github.com/aashish-nayak/WatchTOgather/internal/transport"
	"github.com/aashish-nayak/WatchTOgather/internal/ui"
)

// readyTimeout bounds how long a command waits for the relay to confirm
// room membership before giving up.
const readyTimeout = 15 * time.Second

// session ties one room membership together: the reconnecting relay
// channel, the per-peer WebRTC orchestrator, and the chat view.
type session struct {
	cfg      *config.Config
	role     string
	roomID   string
	userID   string
	username string

	channel *transport.Channel
	manager *peer.Manager
	program *tea.Program

	// uiMsgs decouples pump goroutines from the UI. The forwarder blocks
	// until the program runs; the buffer preserves ordering meanwhile.
	uiMsgs chan tea.Msg

	ready chan error

	mu          sync.Mutex
	established bool
	peersSeen   map[string]bool
	messages    int
	start       time.Time
}

func newSession(cfg *config.Config, role, roomID, username string) *session {
	if username == "" {
		username = role
	}

	s := &session{
		cfg:       cfg,
		role:      role,
		roomID:    roomID,
		userID:    uuid.NewString(),
		username:  username,
		uiMsgs:    make(chan tea.Msg, 256),
		ready:     make(chan error, 1),
		peersSeen: make(map[string]bool),
		start:     time.Now(),
	}

	s.channel = transport.New(transport.Options{
		URL:         cfg.WebSocketURL,
		MaxAttempts: cfg.MaxReconnect,
		BaseDelay:   cfg.ReconnectDelay,
	})

	s.manager = peer.NewManager(role, s.userID, username, roomID, s.channel, iceServers(cfg), peer.Callbacks{
		OnPeerState: s.onPeerState,
		OnChat:      s.onDirectChat,
		OnTrack:     s.onTrack,
	})

	title := fmt.Sprintf("%s · %s", roomID, username)
	s.program = tea.NewProgram(ui.NewChatModel(title, username, s.sendChat))
	go func() {
		for msg := range s.uiMsgs {
			s.program.Send(msg)
		}
	}()

	s.channel.On(transport.Wildcard, s.handleEnvelope)
	return s
}

// iceServers maps the loaded config onto pion's ICE server list.
func iceServers(cfg *config.Config) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}
	if turn := cfg.GetTURNServers(); turn != nil {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}
	return servers
}

// broadcastSource builds the local video track attached to outgoing
// connections. Frames are fed into it by the platform capture pipeline;
// the track itself is what anchors negotiation.
func broadcastSource() (*peer.StaticSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "screen",
	)
	if err != nil {
		return nil, err
	}
	return peer.NewStaticSource(track), nil
}

// waitReady blocks until the relay confirms the create/join request.
func (s *session) waitReady() error {
	select {
	case err := <-s.ready:
		return err
	case <-time.After(readyTimeout):
		return errors.New("timed out waiting for the relay to confirm the room")
	}
}

// runChat runs the interactive chat view until the user leaves or the
// session ends.
func (s *session) runChat() error {
	_, err := s.program.Run()
	return err
}

// close leaves the room and tears down the peer connections and the
// relay channel.
func (s *session) close() {
	s.channel.Send(&protocol.Envelope{
		Type:   protocol.TypeLeaveRoom,
		RoomID: s.roomID,
		UserID: s.userID,
	})
	s.manager.CloseAll()
	s.channel.Stop()
}

// summary prints the end-of-session recap table.
func (s *session) summary() {
	s.mu.Lock()
	peers := len(s.peersSeen)
	messages := s.messages
	s.mu.Unlock()

	fmt.Println()
	ui.RenderSessionSummary(ui.SessionSummary{
		Role:     s.role,
		RoomID:   s.roomID,
		Peers:    peers,
		Messages: messages,
		Duration: time.Since(s.start),
	})
}

// sendChat delivers a chat line over the open data channels, falling
// back to the relay broadcast when no direct channel is up yet.
func (s *session) sendChat(text string) error {
	s.mu.Lock()
	s.messages++
	s.mu.Unlock()

	if err := s.manager.SendChat(text); err != nil {
		s.channel.Send(&protocol.Envelope{
			Type:     protocol.TypeChatMessage,
			RoomID:   s.roomID,
			UserID:   s.userID,
			Username: s.username,
			Text:     text,
		})
	}
	return nil
}

func (s *session) post(msg tea.Msg) {
	select {
	case s.uiMsgs <- msg:
	default:
		slog.Debug("dropping UI message, buffer full")
	}
}

func (s *session) markPeer(id string) {
	s.mu.Lock()
	s.peersSeen[id] = true
	s.mu.Unlock()
}

// confirmReady resolves the initial membership wait. Confirmations after
// that point mean the channel reconnected and rejoined.
func (s *session) confirmReady(err error) {
	s.mu.Lock()
	first := !s.established
	if err == nil {
		s.established = true
	}
	s.mu.Unlock()

	if first {
		s.ready <- err
		return
	}
	if err == nil {
		s.post(ui.StatusMsg{Text: "reconnected to relay"})
	} else {
		s.post(ui.StatusMsg{Text: "relay error: " + err.Error()})
	}
}

// handleEnvelope is the wildcard listener on the relay channel; it maps
// every inbound message onto session behavior.
func (s *session) handleEnvelope(env *protocol.Envelope) {
	ev, err := protocol.DecodeEvent(env)
	if err != nil {
		slog.Debug("ignoring unknown relay message", "type", env.Type)
		return
	}

	switch ev := ev.(type) {
	case protocol.ConnectedEvent:
		slog.Debug("relay greeting", "message", ev.Message)

	case protocol.RoomCreatedEvent:
		s.confirmReady(nil)

	case protocol.RoomJoinedEvent:
		s.confirmReady(nil)

	case protocol.ViewerJoinedEvent:
		s.markPeer(ev.UserID)
		s.post(ui.StatusMsg{Text: "viewer joined: " + ev.UserID})
		if err := s.manager.HandleViewerJoined(ev.UserID); err != nil {
			slog.Warn("failed to start negotiation with viewer", "viewer", ev.UserID, "err", err)
		}

	case protocol.ViewerLeftEvent:
		s.manager.ClosePeer(ev.UserID)
		s.post(ui.StatusMsg{Text: "viewer left: " + ev.UserID})

	case protocol.HostLeftEvent:
		s.post(ui.SessionEndedMsg{Reason: "the host ended the broadcast"})

	case protocol.OfferEvent:
		s.markPeer(ev.FromID)
		if err := s.manager.HandleOffer(ev.FromID, ev.Data); err != nil {
			slog.Warn("failed to answer offer", "peer", ev.FromID, "err", err)
		}

	case protocol.AnswerEvent:
		if err := s.manager.HandleAnswer(ev.FromID, ev.Data); err != nil {
			slog.Warn("failed to apply answer", "peer", ev.FromID, "err", err)
		}

	case protocol.ICECandidateEvent:
		if err := s.manager.HandleCandidate(ev.FromID, ev.Data); err != nil {
			slog.Debug("failed to apply candidate", "peer", ev.FromID, "err", err)
		}

	case protocol.ChatEvent:
		if ev.UserID == s.userID {
			return
		}
		s.mu.Lock()
		s.messages++
		s.mu.Unlock()
		from := ev.Username
		if from == "" {
			from = ev.UserID
		}
		s.post(ui.ChatLineMsg{From: from, Text: ev.Text, At: time.UnixMilli(ev.Timestamp)})

	case protocol.ErrorEvent:
		s.confirmReady(errors.New(ev.Message))
	}
}

func (s *session) onPeerState(peerID string, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.markPeer(peerID)
		s.post(ui.StatusMsg{Text: "direct connection established: " + peerID})
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		s.post(ui.StatusMsg{Text: "direct connection lost: " + peerID})
	}
}

func (s *session) onDirectChat(peerID string, msg peer.ChatPayload) {
	s.mu.Lock()
	s.messages++
	s.mu.Unlock()
	from := msg.Username
	if from == "" {
		from = peerID
	}
	s.post(ui.ChatLineMsg{From: from, Text: msg.Text, At: time.UnixMilli(msg.SentAt)})
}

func (s *session) onTrack(peerID string, track *webrtc.TrackRemote) {
	s.post(ui.StatusMsg{Text: "receiving broadcast stream from " + peerID})
	// Keep the RTP flowing; rendering is handled by the playback layer.
	go func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	}()
}
