package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkvalley/campus/internal/model"
)

// ---------------------------------------------------------------------------
// Test: onlineUsers
// ---------------------------------------------------------------------------

func TestParseServerEvent_OnlineUsers(t *testing.T) {
	input := []byte(`{"type":"onlineUsers","data":[{"_id":"u1","name":"Asha","role":"Student"},{"_id":"u2","name":"Ravi","role":"Faculty"}]}`)

	eventType, event, err := ParseServerEvent(input)
	require.NoError(t, err)
	assert.Equal(t, TypeOnlineUsers, eventType)

	users, ok := event.([]model.Identity)
	require.True(t, ok, "expected []model.Identity, got %T", event)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, model.RoleFaculty, users[1].Role)
}

func TestParseServerEvent_OnlineUsersNull(t *testing.T) {
	_, event, err := ParseServerEvent([]byte(`{"type":"onlineUsers","data":null}`))
	require.NoError(t, err)

	users, ok := event.([]model.Identity)
	require.True(t, ok)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

// ---------------------------------------------------------------------------
// Test: newMessage / messageHistory
// ---------------------------------------------------------------------------

func TestParseServerEvent_NewMessage(t *testing.T) {
	input := []byte(`{"type":"newMessage","data":{"_id":"m1","sender":{"_id":"a","name":"A"},"receiver":{"_id":"b"},"message":"hello","createdAt":"2024-03-01T10:00:00.000Z"}}`)

	eventType, event, err := ParseServerEvent(input)
	require.NoError(t, err)
	assert.Equal(t, TypeNewMessage, eventType)

	msg, ok := event.(model.Message)
	require.True(t, ok, "expected model.Message, got %T", event)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "a", msg.SenderID())
	assert.Equal(t, "b", msg.ReceiverID())
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, 2024, msg.CreatedAt.Year())
}

func TestParseServerEvent_MessageHistory(t *testing.T) {
	input := []byte(`{"type":"messageHistory","data":[{"_id":"m1","message":"one"},{"_id":"m2","message":"two"}]}`)

	_, event, err := ParseServerEvent(input)
	require.NoError(t, err)

	history, ok := event.([]model.Message)
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[1].Body)
	assert.Equal(t, "", history[1].SenderID())
}

// ---------------------------------------------------------------------------
// Test: userTyping
// ---------------------------------------------------------------------------

func TestParseServerEvent_UserTyping(t *testing.T) {
	_, event, err := ParseServerEvent([]byte(`{"type":"userTyping","data":{"senderId":"a","isTyping":true}}`))
	require.NoError(t, err)
	assert.Equal(t, model.TypingEvent{SenderID: "a", IsTyping: true}, event)
}

// ---------------------------------------------------------------------------
// Test: malformed frames
// ---------------------------------------------------------------------------

func TestParseServerEvent_UnknownType(t *testing.T) {
	eventType, event, err := ParseServerEvent([]byte(`{"type":"match_found","data":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEvent))
	assert.Equal(t, "match_found", eventType)
	assert.Nil(t, event)
}

func TestParseServerEvent_MissingType(t *testing.T) {
	_, _, err := ParseServerEvent([]byte(`{"data":[]}`))
	assert.Error(t, err)
}

func TestParseServerEvent_InvalidJSON(t *testing.T) {
	_, _, err := ParseServerEvent([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseServerEvent_WrongPayloadShape(t *testing.T) {
	eventType, _, err := ParseServerEvent([]byte(`{"type":"messageHistory","data":{"_id":"m1"}}`))
	require.Error(t, err)
	assert.Equal(t, TypeMessageHistory, eventType)
}

// ---------------------------------------------------------------------------
// Test: Encode
// ---------------------------------------------------------------------------

func TestEncode_SendMessage(t *testing.T) {
	frame, err := Encode(TypeSendMessage, SendMessagePayload{SenderID: "a", ReceiverID: "b", Message: "hi"})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &raw))
	assert.JSONEq(t, `"sendMessage"`, string(raw["type"]))
	assert.JSONEq(t, `{"senderId":"a","receiverId":"b","message":"hi"}`, string(raw["data"]))
}

func TestEncode_UserOnlineCarriesBareID(t *testing.T) {
	frame, err := Encode(TypeUserOnline, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"userOnline","data":"u1"}`, string(frame))
}

func TestDecode_KeepsRawData(t *testing.T) {
	env, err := Decode([]byte(`{"type":"typingStop","data":{"senderId":"a","receiverId":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeTypingStop, env.Type)

	var p TypingPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, TypingPayload{SenderID: "a", ReceiverID: "b"}, p)
}
