package protocol

import (
	"encoding/json"
	"fmt"
)

// Event is one of the concrete server-to-client event structs below.
// Client code switches on the concrete type instead of inspecting raw
// envelope fields, so every variant has exactly one payload shape.
type Event any

// ConnectedEvent is the greeting sent when the socket opens.
type ConnectedEvent struct {
	Message string
}

// RoomCreatedEvent confirms host membership.
type RoomCreatedEvent struct {
	RoomID string
	UserID string
}

// RoomJoinedEvent confirms viewer membership.
type RoomJoinedEvent struct {
	RoomID string
	UserID string
}

// ViewerJoinedEvent tells the host a viewer entered the room.
type ViewerJoinedEvent struct {
	RoomID string
	UserID string
}

// ViewerLeftEvent tells the host a viewer left the room.
type ViewerLeftEvent struct {
	RoomID string
	UserID string
}

// HostLeftEvent tells viewers the room is gone.
type HostLeftEvent struct {
	RoomID string
}

// OfferEvent carries a relayed SDP offer.
type OfferEvent struct {
	RoomID string
	FromID string
	Data   json.RawMessage
}

// AnswerEvent carries a relayed SDP answer.
type AnswerEvent struct {
	RoomID string
	FromID string
	Data   json.RawMessage
}

// ICECandidateEvent carries a relayed connectivity candidate.
type ICECandidateEvent struct {
	RoomID string
	FromID string
	Data   json.RawMessage
}

// ChatEvent is a broadcast chat message, timestamped by the server.
type ChatEvent struct {
	RoomID    string
	UserID    string
	Username  string
	Text      string
	Timestamp int64
}

// ErrorEvent is a sender-only rejection.
type ErrorEvent struct {
	Message string
}

// DecodeEvent maps a server envelope onto its typed event variant.
// Unknown types yield an error so callers can log and move on.
func DecodeEvent(env *Envelope) (Event, error) {
	switch env.Type {
	case TypeConnected:
		return ConnectedEvent{Message: env.Message}, nil
	case TypeRoomCreated:
		return RoomCreatedEvent{RoomID: env.RoomID, UserID: env.UserID}, nil
	case TypeRoomJoined:
		return RoomJoinedEvent{RoomID: env.RoomID, UserID: env.UserID}, nil
	case TypeViewerJoined:
		return ViewerJoinedEvent{RoomID: env.RoomID, UserID: env.UserID}, nil
	case TypeViewerLeft:
		return ViewerLeftEvent{RoomID: env.RoomID, UserID: env.UserID}, nil
	case TypeHostLeft:
		return HostLeftEvent{RoomID: env.RoomID}, nil
	case TypeOffer:
		return OfferEvent{RoomID: env.RoomID, FromID: env.FromID, Data: env.Data}, nil
	case TypeAnswer:
		return AnswerEvent{RoomID: env.RoomID, FromID: env.FromID, Data: env.Data}, nil
	case TypeICECandidate:
		return ICECandidateEvent{RoomID: env.RoomID, FromID: env.FromID, Data: env.Data}, nil
	case TypeChatMessage:
		return ChatEvent{
			RoomID:    env.RoomID,
			UserID:    env.UserID,
			Username:  env.Username,
			Text:      env.Text,
			Timestamp: env.Timestamp,
		}, nil
	case TypeError:
		return ErrorEvent{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}
