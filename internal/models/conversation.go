package models

import (
	"sort"
	"time"
)

// Conversation is a direct (exactly two participants) or group thread.
type Conversation struct {
	ID           string        `db:"id" json:"id"`
	IsGroup      bool          `db:"is_group" json:"is_group"`
	Title        *string       `db:"title" json:"title,omitempty"`
	CreatedBy    string        `db:"created_by" json:"created_by"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	Participants []Participant `db:"-" json:"participants"`
}

// Participant is a user's membership in a conversation.
type Participant struct {
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
}

// ConversationSummary is the list view of a conversation for one user.
type ConversationSummary struct {
	Conversation
	LastMessage  *Message  `db:"-" json:"last_message,omitempty"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs lists participant user ids.
func (c Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// DirectKey is the order-independent identity of a direct conversation.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}
