// Package chat derives the views the chat screen shows from the realtime
// manager's shared state.
package chat

import "github.com/rkvalley/campus/internal/model"

// UnknownUser is shown for a user with neither name nor username.
const UnknownUser = "Unknown User"

// ProjectConversation returns the messages exchanged between selfID and
// otherID, in log order. Messages missing a sender or receiver are skipped.
// The log is not modified.
func ProjectConversation(log []model.Message, selfID, otherID string) []model.Message {
	out := []model.Message{}
	if selfID == "" || otherID == "" {
		return out
	}
	for _, m := range log {
		if m.Sender == nil || m.Receiver == nil {
			continue
		}
		from, to := m.Sender.ID, m.Receiver.ID
		if (from == selfID && to == otherID) || (from == otherID && to == selfID) {
			out = append(out, m)
		}
	}
	return out
}

// DisplayName picks the label for a user.
func DisplayName(u model.Identity) string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return UnknownUser
}

// IsOwn reports whether selfID sent m.
func IsOwn(m model.Message, selfID string) bool {
	return selfID != "" && m.SenderID() == selfID
}
