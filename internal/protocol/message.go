package protocol

import "encoding/json"

// Connection roles within a room.
const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

// Message types sent by clients.
const (
	TypeCreateRoom   = "create-room"
	TypeJoinRoom     = "join-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeChatMessage  = "chat-message"
	TypeLeaveRoom    = "leave-room"
	TypePing         = "ping"
)

// Message types sent by the server.
const (
	TypeConnected    = "connected"
	TypeRoomCreated  = "room-created"
	TypeRoomJoined   = "room-joined"
	TypeViewerJoined = "viewer-joined"
	TypeViewerLeft   = "viewer-left"
	TypeHostLeft     = "host-left"
	TypeError        = "error"
)

// Envelope is the wire format for every signaling message, in both
// directions. Type selects the variant; unused fields are omitted.
type Envelope struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	TargetID  string          `json:"targetId,omitempty"`
	FromID    string          `json:"fromId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Text      string          `json:"text,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// IsSignal reports whether t is one of the point-to-point negotiation
// types that require a targetId and membership checks on the relay.
func IsSignal(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// Encode serializes an envelope to a JSON text frame.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses a JSON text frame into an envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
