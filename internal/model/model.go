// Package model defines the entities shared by the session, realtime and API layers.
package model

import "time"

// Role is the portal a user belongs to. Values match the backend spelling.
type Role string

// Known roles.
const (
	RoleStudent Role = "Student"
	RoleFaculty Role = "Faculty"
	RoleAdmin   Role = "Admin"
)

// AllRoles lists every role, in portal order.
var AllRoles = []Role{RoleStudent, RoleFaculty, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Identity is a user as known to the client.
type Identity struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name,omitempty"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	Role       Role      `json:"role,omitempty"`
	ClassName  string    `json:"className,omitempty"`
	ProfilePic string    `json:"profilePic,omitempty"`
	LastSeen   time.Time `json:"lastSeen,omitempty"`
}

// IsZero reports whether the identity carries no user id.
func (i Identity) IsZero() bool { return i.ID == "" }

// Message is a single direct chat message. Sender and Receiver are nil when the
// server sends an unpopulated record.
type Message struct {
	ID        string    `json:"_id,omitempty"`
	Sender    *Identity `json:"sender,omitempty"`
	Receiver  *Identity `json:"receiver,omitempty"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// SenderID returns the sender's id or "" if unknown.
func (m Message) SenderID() string {
	if m.Sender == nil {
		return ""
	}
	return m.Sender.ID
}

// ReceiverID returns the receiver's id or "" if unknown.
func (m Message) ReceiverID() string {
	if m.Receiver == nil {
		return ""
	}
	return m.Receiver.ID
}

// TypingEvent signals that SenderID started or stopped typing.
type TypingEvent struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}
