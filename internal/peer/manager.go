package peer

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
)

// Signaler is the slice of the transport channel the orchestrator
// needs: a way to relay envelopes to the remote side.
type Signaler interface {
	Send(*protocol.Envelope)
}

// Callbacks surface orchestrator events to the application layer.
// Unset callbacks are skipped.
type Callbacks struct {
	// OnPeerState mirrors the underlying connectivity signal for one
	// remote peer. Negotiation failures arrive here as a transition to
	// Failed; the orchestrator does not retry on its own.
	OnPeerState func(peerID string, state webrtc.PeerConnectionState)

	// OnChat delivers a chat frame received over a data channel.
	OnChat func(peerID string, msg ChatPayload)

	// OnTrack delivers incoming remote media as it arrives.
	OnTrack func(peerID string, track *webrtc.TrackRemote)
}

// remotePeer is the per-peer record: the negotiated connection, its
// chat channel, and the candidate buffer used until the remote
// description is applied.
type remotePeer struct {
	id          string
	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel
	dcOpen      bool
	remoteSet   bool
	negotiating bool
	pending     []webrtc.ICECandidateInit
}

// Manager drives one peer connection per remote peer through the
// offer/answer/ICE exchange. A host offers to each viewer it learns
// about; a viewer answers offers from the host.
type Manager struct {
	role     string
	selfID   string
	username string
	roomID   string

	signaler   Signaler
	iceServers []webrtc.ICEServer
	cb         Callbacks

	mu     sync.Mutex
	media  MediaSource
	peers  map[string]*remotePeer
	closed bool
}

// NewManager creates an orchestrator for one room session.
func NewManager(role, selfID, username, roomID string, sig Signaler, iceServers []webrtc.ICEServer, cb Callbacks) *Manager {
	return &Manager{
		role:       role,
		selfID:     selfID,
		username:   username,
		roomID:     roomID,
		signaler:   sig,
		iceServers: iceServers,
		cb:         cb,
		peers:      make(map[string]*remotePeer),
	}
}

// StartSharing attaches the local capture source. Connections opened
// from now on carry its tracks.
func (m *Manager) StartSharing(src MediaSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media = src
}

// Sharing reports whether a capture source is attached.
func (m *Manager) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media != nil
}

// Peers lists the remote peer IDs with live records.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	return ids
}

// HandleViewerJoined starts negotiation with a new viewer: fresh
// connection, local tracks, chat channel, then an offer addressed to
// that viewer. Without an active capture source no offer is sent and
// the caller is told sharing must start first.
func (m *Manager) HandleViewerJoined(viewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return newError("viewer joined", viewerID, ErrClosed)
	}
	if m.role != protocol.RoleHost {
		return newError("viewer joined", viewerID, ErrWrongRole)
	}
	if m.media == nil {
		return newError("viewer joined", viewerID, ErrSharingNotStarted)
	}

	if existing, ok := m.peers[viewerID]; ok {
		if existing.negotiating {
			// Offer already in flight for this viewer; ignore the race.
			slog.Debug("ignoring duplicate negotiation trigger", "peer", viewerID)
			return nil
		}
		m.closePeerLocked(existing)
	}

	p, err := m.newPeerLocked(viewerID)
	if err != nil {
		return newError("create peer connection", viewerID, err)
	}

	for _, track := range m.media.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			m.closePeerLocked(p)
			return newError("add track", viewerID, err)
		}
		// Read and discard RTCP so interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}

	ordered := true
	dc, err := p.pc.CreateDataChannel(chatChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		m.closePeerLocked(p)
		return newError("create data channel", viewerID, err)
	}
	m.wireDataChannelLocked(p, dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		m.closePeerLocked(p)
		return newError("create offer", viewerID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		m.closePeerLocked(p)
		return newError("set local description", viewerID, err)
	}

	p.negotiating = true
	m.relayDescription(protocol.TypeOffer, viewerID, p.pc.LocalDescription())
	return nil
}

// HandleOffer answers an incoming offer (viewer role). A duplicate
// offer for a peer still negotiating is ignored.
func (m *Manager) HandleOffer(fromID string, data json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(data, &offer); err != nil {
		return newError("parse offer", fromID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return newError("handle offer", fromID, ErrClosed)
	}

	if existing, ok := m.peers[fromID]; ok {
		if existing.negotiating {
			slog.Debug("ignoring duplicate offer", "peer", fromID)
			return nil
		}
		m.closePeerLocked(existing)
	}

	p, err := m.newPeerLocked(fromID)
	if err != nil {
		return newError("create peer connection", fromID, err)
	}

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.cb.OnTrack != nil {
			m.cb.OnTrack(fromID, track)
		}
	})
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.wireDataChannelLocked(p, dc)
	})

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		m.closePeerLocked(p)
		return newError("set remote description", fromID, err)
	}
	p.remoteSet = true
	p.negotiating = true
	m.flushPendingLocked(p)

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		m.closePeerLocked(p)
		return newError("create answer", fromID, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		m.closePeerLocked(p)
		return newError("set local description", fromID, err)
	}

	m.relayDescription(protocol.TypeAnswer, fromID, p.pc.LocalDescription())
	return nil
}

// HandleAnswer applies a viewer's answer to the offer we sent it.
// Answers from unknown peers are dropped; the peer may have been torn
// down while the answer was in flight.
func (m *Manager) HandleAnswer(fromID string, data json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(data, &answer); err != nil {
		return newError("parse answer", fromID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[fromID]
	if !ok {
		slog.Debug("dropping answer from unknown peer", "peer", fromID)
		return nil
	}

	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return newError("set remote description", fromID, err)
	}
	p.remoteSet = true
	m.flushPendingLocked(p)
	return nil
}

// HandleCandidate applies a remote connectivity candidate. Candidates
// arriving before the remote description are buffered and flushed once
// it is set; candidates for unknown peers are dropped without error.
func (m *Manager) HandleCandidate(fromID string, data json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &candidate); err != nil {
		return newError("parse ICE candidate", fromID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[fromID]
	if !ok {
		slog.Debug("dropping candidate for unknown peer", "peer", fromID)
		return nil
	}

	if !p.remoteSet {
		p.pending = append(p.pending, candidate)
		return nil
	}

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return newError("add ICE candidate", fromID, err)
	}
	return nil
}

// SendChat fans a chat frame out over every open data channel. When no
// channel is open the failure is reported so the caller can fall back
// to the signaling relay. Delivery is at-most-once per peer.
func (m *Manager) SendChat(text string) error {
	data, err := encodeChat(m.selfID, m.username, text)
	if err != nil {
		return newError("encode chat", "", err)
	}

	m.mu.Lock()
	open := make([]*remotePeer, 0, len(m.peers))
	for _, p := range m.peers {
		if p.dcOpen && p.dc != nil {
			open = append(open, p)
		}
	}
	m.mu.Unlock()

	delivered := 0
	for _, p := range open {
		if err := p.dc.Send(data); err != nil {
			slog.Debug("chat send failed", "peer", p.id, "err", err)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return newError("send chat", "", ErrChannelNotOpen)
	}
	return nil
}

// ClosePeer tears down one peer: data channel first, then the
// connection, then the record.
func (m *Manager) ClosePeer(peerID string) {
	m.mu.Lock()
	p, ok := m.peers[peerID]
	if ok {
		m.closePeerLocked(p)
	}
	m.mu.Unlock()
}

// CloseAll tears down every peer connection and releases the local
// capture source.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	peers := make([]*remotePeer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	media := m.media
	m.media = nil
	m.peers = make(map[string]*remotePeer)
	m.closed = true
	m.mu.Unlock()

	for _, p := range peers {
		closePeerConn(p)
	}
	if media != nil {
		media.Close()
	}
}

// newPeerLocked creates the connection record and wires the handlers
// common to both roles.
func (m *Manager) newPeerLocked(peerID string) (*remotePeer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		return nil, err
	}

	p := &remotePeer{id: peerID, pc: pc}
	m.peers[peerID] = p

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		data, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			return
		}
		m.signaler.Send(&protocol.Envelope{
			Type:     protocol.TypeICECandidate,
			RoomID:   m.roomID,
			UserID:   m.selfID,
			TargetID: peerID,
			Data:     data,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", "peer", peerID, "state", state)
		switch state {
		case webrtc.PeerConnectionStateConnected,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			m.mu.Lock()
			if cur, ok := m.peers[peerID]; ok && cur == p {
				cur.negotiating = false
			}
			m.mu.Unlock()
		}
		if m.cb.OnPeerState != nil {
			m.cb.OnPeerState(peerID, state)
		}
	})

	return p, nil
}

func (m *Manager) wireDataChannelLocked(p *remotePeer, dc *webrtc.DataChannel) {
	p.dc = dc

	dc.OnOpen(func() {
		m.mu.Lock()
		p.dcOpen = true
		m.mu.Unlock()
	})
	dc.OnClose(func() {
		m.mu.Lock()
		p.dcOpen = false
		m.mu.Unlock()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		chat, err := decodeChat(msg.Data)
		if err != nil {
			slog.Debug("dropping undecodable chat frame", "peer", p.id, "err", err)
			return
		}
		if m.cb.OnChat != nil {
			m.cb.OnChat(p.id, chat)
		}
	})
}

// flushPendingLocked applies candidates buffered before the remote
// description was set. Individual failures are logged, not fatal.
func (m *Manager) flushPendingLocked(p *remotePeer) {
	for _, candidate := range p.pending {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			slog.Debug("buffered candidate rejected", "peer", p.id, "err", err)
		}
	}
	p.pending = nil
}

func (m *Manager) relayDescription(msgType, targetID string, desc *webrtc.SessionDescription) {
	data, err := json.Marshal(desc)
	if err != nil {
		slog.Error("failed to encode session description", "err", err)
		return
	}
	m.signaler.Send(&protocol.Envelope{
		Type:     msgType,
		RoomID:   m.roomID,
		UserID:   m.selfID,
		TargetID: targetID,
		Data:     data,
	})
}

func (m *Manager) closePeerLocked(p *remotePeer) {
	delete(m.peers, p.id)
	// Closing can fire callbacks synchronously; do it off the lock.
	go closePeerConn(p)
}

func closePeerConn(p *remotePeer) {
	if p.dc != nil {
		p.dc.Close()
	}
	p.pc.Close()
}
