// Package protocol defines the realtime event types and payloads exchanged with
// the chat server. Every frame is a JSON envelope with a type discriminator and
// a data payload: {"type": "newMessage", "data": {...}}.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rkvalley/campus/internal/model"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeUserOnline        = "userOnline"
	TypeSendMessage       = "sendMessage"
	TypeGetMessageHistory = "getMessageHistory"
	TypeTypingStart       = "typingStart"
	TypeTypingStop        = "typingStop"
)

// Server -> Client event types.
const (
	TypeOnlineUsers    = "onlineUsers"
	TypeNewMessage     = "newMessage"
	TypeMessageHistory = "messageHistory"
	TypeUserTyping     = "userTyping"
)

// ErrUnknownEvent is returned for event types the client does not handle.
var ErrUnknownEvent = errors.New("protocol: unknown event type")

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw payload for deferred decoding.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a frame into its envelope. A missing type is an error.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "protocol: failed to unmarshal envelope")
	}
	if env.Type == "" {
		return Envelope{}, errors.New("protocol: missing or empty \"type\" field")
	}
	return env, nil
}

// Encode marshals payload and wraps it in an envelope of the given type.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "protocol: failed to marshal %q payload", eventType)
	}
	out, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return nil, errors.Wrapf(err, "protocol: failed to marshal %q envelope", eventType)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// SendMessagePayload asks the server to deliver a message. The server echoes
// it back to both parties as newMessage.
type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// HistoryRequestPayload asks for the conversation between UserID and OtherUserID.
type HistoryRequestPayload struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

// TypingPayload is carried by typingStart and typingStop.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// ---------------------------------------------------------------------------
// Server -> Client decoding
// ---------------------------------------------------------------------------

// ParseServerEvent parses a frame into a typed server event. The returned value
// is one of []model.Identity (onlineUsers), model.Message (newMessage),
// []model.Message (messageHistory) or model.TypingEvent (userTyping).
func ParseServerEvent(frame []byte) (string, interface{}, error) {
	env, err := Decode(frame)
	if err != nil {
		return "", nil, err
	}

	var event interface{}
	switch env.Type {
	case TypeOnlineUsers:
		var users []model.Identity
		err = unmarshalData(env.Data, &users)
		event = nonNilUsers(users)
	case TypeNewMessage:
		var msg model.Message
		err = unmarshalData(env.Data, &msg)
		event = msg
	case TypeMessageHistory:
		var history []model.Message
		err = unmarshalData(env.Data, &history)
		event = nonNilMessages(history)
	case TypeUserTyping:
		var typing model.TypingEvent
		err = unmarshalData(env.Data, &typing)
		event = typing
	default:
		return env.Type, nil, errors.Wrapf(ErrUnknownEvent, "%q", env.Type)
	}

	if err != nil {
		return env.Type, nil, errors.Wrapf(err, "protocol: failed to decode %q payload", env.Type)
	}
	return env.Type, event, nil
}

// unmarshalData treats an absent payload as JSON null.
func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nonNilUsers(users []model.Identity) []model.Identity {
	if users == nil {
		return []model.Identity{}
	}
	return users
}

func nonNilMessages(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}
