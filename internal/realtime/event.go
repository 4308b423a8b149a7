package realtime

import (
	"encoding/json"

	"github.com/sierrachat/client/internal/model"
)

type EventType string

const (
	// Inbound: a message addressed to the local user from another party.
	EventNewMessage EventType = "new-message"
	// Inbound: acknowledgement of a message the local user just sent, so the
	// sender's own view updates without a second REST round trip.
	EventMessageSent EventType = "message-sent"

	// Outbound presence controls.
	eventJoinRoom  EventType = "join-room"
	eventLeaveRoom EventType = "leave-room"
)

// envelope is the wire frame for both directions.
type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outgoing struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// messagePayload is the inbound payload for both message events. ClientToken
// is the correlation token the client attached to the originating send; the
// backend echoes it on message-sent.
type messagePayload struct {
	model.Message
	ClientToken string `json:"clientToken,omitempty"`
}

// MessageEvent is a message push delivered to subscribers. The transport
// makes no idempotence promise; consumers dedupe by Message.ID.
type MessageEvent struct {
	Type        EventType
	Message     model.Message
	ClientToken string
}

type roomPayload struct {
	UserID string `json:"userId"`
}
