package signaling

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
)

// Inbound is a frame read from a client socket, paired with the
// connection it arrived on. Malformed marks a frame that failed to
// parse as JSON.
type Inbound struct {
	Client    *Client
	Env       *protocol.Envelope
	Malformed bool
}

// Hub is the room registry and relay router. All room and membership
// state is owned by the single goroutine running Run, so every inbound
// message mutates state atomically with respect to every other one.
type Hub struct {
	// rooms maps room IDs to live rooms.
	rooms map[string]*Room

	// clients maps stable connection IDs to their metadata records.
	// Deletion is tied to the same event that closes the socket.
	clients map[string]*Client

	// Register is the channel for newly upgraded connections.
	Register chan *Client

	// Unregister is the channel for closed connections.
	Unregister chan *Client

	// Inbound carries parsed client frames into the run loop.
	Inbound chan *Inbound

	// roomCount mirrors len(rooms) for the health endpoint, which runs
	// outside the hub goroutine.
	roomCount atomic.Int64
}

// NewHub creates an empty hub. Call Run in its own goroutine before
// registering clients.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound),
	}
}

// RoomCount reports the number of live rooms. Safe to call from any
// goroutine.
func (h *Hub) RoomCount() int {
	return int(h.roomCount.Load())
}

// Run is the hub's main processing loop and the only goroutine allowed
// to touch room state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case in := <-h.Inbound:
			if in.Malformed {
				h.sendError(in.Client, "Invalid message format")
				continue
			}
			h.dispatch(in.Client, in.Env)
		}
	}
}

func (h *Hub) register(c *Client) {
	c.open = true
	h.clients[c.ID] = c
	slog.Info("client registered", "conn", c.ID)

	h.sendTo(c, &protocol.Envelope{
		Type:    protocol.TypeConnected,
		Message: "Connected to signaling server",
	})
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	slog.Info("client unregistered", "conn", c.ID)

	h.detach(c)
	delete(h.clients, c.ID)
	c.open = false
	close(c.Send)
}

func (h *Hub) dispatch(c *Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(c, env)

	case protocol.TypeJoinRoom:
		h.handleJoinRoom(c, env)

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		h.handleSignal(c, env)

	case protocol.TypeChatMessage:
		h.handleChat(c, env)

	case protocol.TypeLeaveRoom:
		h.detach(c)

	case protocol.TypePing:
		// Liveness probe, nothing to do.

	default:
		slog.Warn("unknown message type", "type", env.Type, "conn", c.ID)
	}
}

// handleCreateRoom registers the sender as host of a new room. An
// existing room ID is rejected, never overwritten.
func (h *Hub) handleCreateRoom(c *Client, env *protocol.Envelope) {
	if env.RoomID == "" || env.UserID == "" {
		h.sendError(c, "Invalid message format")
		return
	}

	if _, exists := h.rooms[env.RoomID]; exists {
		slog.Info("room create rejected, already exists", "room", env.RoomID)
		h.sendError(c, "Room already exists")
		return
	}

	// Attachment is exclusive: leaving any previous room first.
	h.detach(c)

	c.RoomID = env.RoomID
	c.Role = protocol.RoleHost
	c.UserID = env.UserID
	c.Username = env.Username

	h.rooms[env.RoomID] = NewRoom(env.RoomID, c)
	h.roomCount.Store(int64(len(h.rooms)))
	slog.Info("room created", "room", env.RoomID, "host", env.UserID)

	h.sendTo(c, &protocol.Envelope{
		Type:   protocol.TypeRoomCreated,
		RoomID: env.RoomID,
		UserID: env.UserID,
	})
}

// handleJoinRoom adds the sender to an existing room's viewer set and
// notifies the host.
func (h *Hub) handleJoinRoom(c *Client, env *protocol.Envelope) {
	if env.RoomID == "" || env.UserID == "" {
		h.sendError(c, "Invalid message format")
		return
	}

	room, ok := h.rooms[env.RoomID]
	if !ok {
		slog.Info("room join rejected, not found", "room", env.RoomID)
		h.sendError(c, "Room not found")
		return
	}

	// The host cannot join its own room as a viewer: detaching it would
	// destroy the room it is asking to join.
	if room.Host == c {
		slog.Info("room join rejected, sender hosts it", "room", env.RoomID)
		h.sendError(c, "Already hosting this room")
		return
	}

	h.detach(c)

	// Last join wins: a re-join with the same user ID replaces the
	// stored socket. The stale connection is detached so its eventual
	// close cannot evict the new one.
	if old, ok := room.Viewer(env.UserID); ok && old != c {
		old.RoomID = ""
		old.Role = ""
	}

	c.RoomID = env.RoomID
	c.Role = protocol.RoleViewer
	c.UserID = env.UserID
	c.Username = env.Username
	room.AddViewer(c)
	slog.Info("viewer joined", "room", room.ID, "viewer", env.UserID)

	h.sendTo(c, &protocol.Envelope{
		Type:   protocol.TypeRoomJoined,
		RoomID: room.ID,
		UserID: env.UserID,
	})

	h.sendTo(room.Host, &protocol.Envelope{
		Type:   protocol.TypeViewerJoined,
		RoomID: room.ID,
		UserID: env.UserID,
	})
}

// handleSignal relays offer/answer/ice-candidate frames. Hosts address
// a specific viewer via targetId; viewers always reach the host. The
// forwarded frame carries fromId so the receiver can reply.
func (h *Hub) handleSignal(c *Client, env *protocol.Envelope) {
	if c.RoomID == "" || c.RoomID != env.RoomID {
		h.sendError(c, "Not in this room")
		return
	}

	room, ok := h.rooms[c.RoomID]
	if !ok {
		h.sendError(c, "Not in this room")
		return
	}

	var target *Client
	if c.Role == protocol.RoleHost {
		// The target may have just disconnected; that is expected, not
		// an error.
		viewer, ok := room.Viewer(env.TargetID)
		if !ok {
			slog.Debug("signal target not found", "room", room.ID, "target", env.TargetID)
			return
		}
		target = viewer
	} else {
		target = room.Host
	}

	forwarded := *env
	forwarded.FromID = c.UserID
	h.sendTo(target, &forwarded)
}

// handleChat stamps the message and broadcasts it to the host and every
// viewer. Closed sockets are skipped without error.
func (h *Hub) handleChat(c *Client, env *protocol.Envelope) {
	if c.RoomID == "" || c.RoomID != env.RoomID {
		h.sendError(c, "Not in this room")
		return
	}

	room, ok := h.rooms[c.RoomID]
	if !ok {
		h.sendError(c, "Not in this room")
		return
	}

	out := *env
	out.Timestamp = time.Now().UnixMilli()

	h.sendTo(room.Host, &out)
	for _, viewer := range room.Viewers {
		h.sendTo(viewer, &out)
	}
}

// detach removes a connection from its room, if any. Host departure
// destroys the room and tells every viewer; viewer departure only
// shrinks the viewer set.
func (h *Hub) detach(c *Client) {
	if c.RoomID == "" {
		return
	}

	room, ok := h.rooms[c.RoomID]
	if ok {
		if c.Role == protocol.RoleHost && room.Host == c {
			for _, viewer := range room.Viewers {
				h.sendTo(viewer, &protocol.Envelope{
					Type:   protocol.TypeHostLeft,
					RoomID: room.ID,
				})
				viewer.RoomID = ""
				viewer.Role = ""
			}
			delete(h.rooms, room.ID)
			h.roomCount.Store(int64(len(h.rooms)))
			slog.Info("room deleted, host left", "room", room.ID)
		} else if c.Role == protocol.RoleViewer {
			if room.RemoveViewer(c) {
				slog.Info("viewer left", "room", room.ID, "viewer", c.UserID)
				h.sendTo(room.Host, &protocol.Envelope{
					Type:   protocol.TypeViewerLeft,
					RoomID: room.ID,
					UserID: c.UserID,
				})
			}
		}
	}

	c.RoomID = ""
	c.Role = ""
}

// sendTo queues an envelope for one connection. Sending to a closed or
// backpressured socket is fire-and-forget; failures are swallowed and
// never propagated back to the sender.
func (h *Hub) sendTo(c *Client, env *protocol.Envelope) {
	if c == nil || !c.open {
		return
	}
	select {
	case c.Send <- env:
	default:
		slog.Debug("dropping message, send buffer full", "conn", c.ID, "type", env.Type)
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendTo(c, &protocol.Envelope{
		Type:    protocol.TypeError,
		Message: message,
	})
}
