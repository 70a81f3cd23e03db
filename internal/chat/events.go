package chat

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound event types.
const (
	EventJoin        = "join"
	EventSend        = "send"
	EventMarkRead    = "markRead"
	EventTypingStart = "typingStart"
	EventTypingStop  = "typingStop"
)

// Outbound event types.
const (
	EventMessageDelivered  = "messageDelivered"
	EventMessageSent       = "messageSent"
	EventSendFailed        = "sendFailed"
	EventReadStateUpdated  = "readStateUpdated"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventError             = "error"
)

// Envelope is one websocket frame in either direction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	Identity string `json:"identity" validate:"required"`
}

type SendRequest struct {
	Sender         Participant `json:"sender"`
	Receiver       Participant `json:"receiver"`
	Body           string      `json:"body"`
	ConversationID uuid.UUID   `json:"conversationId" validate:"required"`
}

type MarkReadRequest struct {
	ConversationID uuid.UUID `json:"conversationId" validate:"required"`
	ReaderIdentity string    `json:"readerIdentity" validate:"required"`
}

type TypingRequest struct {
	Sender   Participant `json:"sender"`
	Receiver Participant `json:"receiver"`
}

type SendFailed struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

type ReadStateUpdated struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Count          int       `json:"count"`
}

type TypingNotice struct {
	Identity string `json:"identity"`
}

type ErrorNotice struct {
	Event  string `json:"event"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func encode(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}
