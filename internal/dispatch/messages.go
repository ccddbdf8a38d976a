package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType discriminates inbound realtime frames.
type MessageType string

const (
	TypeNewMessage          MessageType = "new_message"
	TypeConversationUpdated MessageType = "conversation_updated"
	TypeUserOnline          MessageType = "user_online"
	TypeUserOffline         MessageType = "user_offline"
	TypeTyping              MessageType = "typing"
	TypeConnected           MessageType = "connected"
	TypePong                MessageType = "pong"
	TypeError               MessageType = "error"
	TypeNotification        MessageType = "notification"
)

// ChatMessage is the payload of a new_message frame.
type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// ConversationUpdate is the payload of a conversation_updated frame.
type ConversationUpdate struct {
	ConversationID int64  `json:"conversation_id"`
	LastMessage    string `json:"last_message"`
	UnreadCount    int    `json:"unread_count"`
}

// PresenceChange is the payload of user_online and user_offline frames.
type PresenceChange struct {
	UserID int64 `json:"user_id"`
}

// TypingEvent is the payload of a typing frame.
type TypingEvent struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}

// Connected is the payload of the server's post-auth handshake frame.
type Connected struct {
	ClientID string `json:"client_id"`
}

// Pong is the payload of a pong frame.
type Pong struct{}

// ServerError is the payload of an error frame.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notification is the payload of a notification frame.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a decoded inbound frame: the discriminator plus its concrete,
// strongly typed payload. Handlers type-switch or assert on Payload instead
// of poking at raw JSON.
type Event struct {
	Type    MessageType
	Payload any
}

// ErrUnknownType marks a structurally valid frame whose type the client
// does not recognize. Such frames are ignored, never fatal.
var ErrUnknownType = errors.New("unknown message type")

// Decode parses a raw frame into a typed Event. The single switch here is
// the only place payload schemas are tied to discriminators.
func Decode(data []byte) (Event, error) {
	var env struct {
		Type MessageType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decoding frame envelope: %w", err)
	}

	decodePayload := func(v any) (Event, error) {
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, v); err != nil {
				return Event{}, fmt.Errorf("decoding %s payload: %w", env.Type, err)
			}
		}
		return Event{Type: env.Type, Payload: v}, nil
	}

	switch env.Type {
	case TypeNewMessage:
		return decodePayload(&ChatMessage{})
	case TypeConversationUpdated:
		return decodePayload(&ConversationUpdate{})
	case TypeUserOnline, TypeUserOffline:
		return decodePayload(&PresenceChange{})
	case TypeTyping:
		return decodePayload(&TypingEvent{})
	case TypeConnected:
		return decodePayload(&Connected{})
	case TypePong:
		return decodePayload(&Pong{})
	case TypeError:
		return decodePayload(&ServerError{})
	case TypeNotification:
		return decodePayload(&Notification{})
	default:
		return Event{Type: env.Type, Payload: env.Data}, ErrUnknownType
	}
}
