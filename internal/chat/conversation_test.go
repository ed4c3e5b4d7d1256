package chat

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkvalley/campus/internal/model"
)

func m(id, from, to string) model.Message {
	msg := model.Message{ID: id, Body: "text " + id}
	if from != "" {
		msg.Sender = &model.Identity{ID: from}
	}
	if to != "" {
		msg.Receiver = &model.Identity{ID: to}
	}
	return msg
}

func ids(msgs []model.Message) []string {
	out := []string{}
	for _, msg := range msgs {
		out = append(out, msg.ID)
	}
	return out
}

// ---------------------------------------------------------------------------
// ProjectConversation
// ---------------------------------------------------------------------------

func TestProjectConversation(t *testing.T) {
	log := []model.Message{
		m("1", "me", "bob"),
		m("2", "bob", "me"),
		m("3", "alice", "me"),
		m("4", "me", "alice"),
		m("5", "bob", "alice"),
		m("6", "", "me"),
		m("7", "bob", ""),
		m("8", "me", "bob"),
	}

	tests := []struct {
		name        string
		self, other string
		want        []string
	}{
		{"both directions in log order", "me", "bob", []string{"1", "2", "8"}},
		{"other conversation", "me", "alice", []string{"3", "4"}},
		{"no messages with user", "me", "carol", []string{}},
		{"no selection", "me", "", []string{}},
		{"logged out", "", "bob", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(ProjectConversation(log, tt.self, tt.other)))
		})
	}
}

func TestProjectConversation_DoesNotMutateLog(t *testing.T) {
	log := []model.Message{m("1", "me", "bob"), m("2", "x", "y")}
	got := ProjectConversation(log, "me", "bob")
	got[0].Body = "changed"
	assert.Equal(t, "text 1", log[0].Body)
	assert.Len(t, log, 2)
}

func TestProjectConversation_NilLog(t *testing.T) {
	got := ProjectConversation(nil, "me", "bob")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

// ---------------------------------------------------------------------------
// DisplayName / IsOwn
// ---------------------------------------------------------------------------

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Alice", DisplayName(model.Identity{Name: "Alice", Username: "alice"}))
	assert.Equal(t, "alice", DisplayName(model.Identity{Username: "alice"}))
	assert.Equal(t, UnknownUser, DisplayName(model.Identity{ID: "u1"}))
}

func TestIsOwn(t *testing.T) {
	assert.True(t, IsOwn(m("1", "me", "bob"), "me"))
	assert.False(t, IsOwn(m("1", "bob", "me"), "me"))
	assert.False(t, IsOwn(m("1", "", "me"), ""))
}

// ---------------------------------------------------------------------------
// ValidateBody
// ---------------------------------------------------------------------------

func TestValidateBody(t *testing.T) {
	got, err := ValidateBody("  hello there \n")
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)

	_, err = ValidateBody("   \t ")
	assert.True(t, errors.Is(err, ErrEmptyMessage))

	_, err = ValidateBody("")
	assert.True(t, errors.Is(err, ErrEmptyMessage))

	_, err = ValidateBody(string([]byte{0xff, 0xfe}))
	assert.True(t, errors.Is(err, ErrInvalidUTF8))
}

func TestValidateBody_Limits(t *testing.T) {
	_, err := ValidateBody(strings.Repeat("a", MaxTextChars))
	assert.NoError(t, err)

	_, err = ValidateBody(strings.Repeat("a", MaxTextChars+1))
	assert.True(t, errors.Is(err, ErrMessageTooLong))

	// 1500 three-byte runes: under the character limit, over the byte limit.
	_, err = ValidateBody(strings.Repeat("€", 1500))
	assert.True(t, errors.Is(err, ErrMessageTooLong))
}
