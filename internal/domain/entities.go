// Package domain holds the chat entities shared by the repositories, the
// broadcaster and the Lambda adapters.
package domain

import "time"

// ParticipantRole is the permission level of a participant within one
// conversation.
type ParticipantRole string

const (
	RoleAdministrator ParticipantRole = "administrator"
	RoleDefault       ParticipantRole = "default"
)

// User is an application user. Conversations holds the ids of every
// conversation the user has joined; it is mutated only through set
// add/remove operations, never overwritten wholesale.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Alias         string    `json:"alias,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CreatedDate   time.Time `json:"createdDate"`
	UpdatedDate   time.Time `json:"updatedDate"`
	Conversations []string  `json:"conversations"`
}

// Conversation is a chat between users.
type Conversation struct {
	ID          string    `json:"id"`
	Alias       string    `json:"alias,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedDate time.Time `json:"createdDate"`
	UpdatedDate time.Time `json:"updatedDate"`
}

// Participant is a user's membership record within one conversation. A
// non-empty ConnectionID means the user currently holds an open WebSocket
// connection and should receive broadcast events.
type Participant struct {
	ConvoID      string          `json:"convoId"`
	UserID       string          `json:"userId"`
	Email        string          `json:"email"`
	Role         ParticipantRole `json:"role"`
	ConnectionID string          `json:"connectionId,omitempty"`
	CreatedDate  time.Time       `json:"createdDate"`
	UpdatedDate  time.Time       `json:"updatedDate"`
}

// UserConversation is one edge of the user/conversation membership relation.
type UserConversation struct {
	UserID  string `json:"userId"`
	ConvoID string `json:"convoId"`
}

// CreateUserInput carries the caller-supplied fields for creating or
// replacing a user.
type CreateUserInput struct {
	Email     string `json:"email"`
	Alias     string `json:"alias,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// CreateConversationInput carries the caller-supplied fields for creating a
// conversation.
type CreateConversationInput struct {
	Alias     string `json:"alias,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
