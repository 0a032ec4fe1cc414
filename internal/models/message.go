package models

import "time"

// MessageState tracks message mutability.
type MessageState string

const (
	MessageActive  MessageState = "active"
	MessageEdited  MessageState = "edited"
	MessageDeleted MessageState = "deleted"
)

// Message represents a chat message.
type Message struct {
	ID             string       `db:"id" json:"id"`
	ConversationID string       `db:"conversation_id" json:"conversation_id"`
	SenderID       string       `db:"sender_id" json:"sender_id"`
	Content        Content      `db:"content" json:"content"`
	IsForwarded    bool         `db:"is_forwarded" json:"is_forwarded"`
	State          MessageState `db:"state" json:"state"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time   `db:"deleted_at" json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the message reached its terminal state.
func (m Message) IsDeleted() bool {
	return m.State == MessageDeleted
}
