package models

import "time"

// Outbound socket event names.
const (
	EventConnected           = "connected"
	EventNewConversation     = "chat:new_conversation"
	EventNewMessage          = "chat:new_message"
	EventMessageUpdated      = "chat:message_updated"
	EventMessageDeleted      = "chat:message_deleted"
	EventUserTyping          = "chat:user_typing"
	EventResumeStatus        = "resume:status"
	EventInteractionNotified = "interaction:notification"
	EventAck                 = "ack"
)

// Inbound socket event names.
const (
	InboundJoin              = "join"
	InboundStartConversation = "chat:start_conversation"
	InboundSendMessage       = "chat:send_message"
	InboundJoinConversation  = "chat:join_conversation"
	InboundLeaveConversation = "chat:leave_conversation"
	InboundUpdateMessage     = "chat:update_message"
	InboundDeleteMessage     = "chat:delete_message"
	InboundTyping            = "chat:typing"
	InboundResumeWatch       = "resume:watch"
)

// Room name prefixes.
const (
	RoomUserPrefix         = "user:"
	RoomConversationPrefix = "conversation:"
	RoomEvaluationPrefix   = "evaluation:"
)

// UserRoom names the personal room of a user.
func UserRoom(userID string) string { return RoomUserPrefix + userID }

// ConversationRoom names the typing/presence room of a conversation.
func ConversationRoom(conversationID string) string { return RoomConversationPrefix + conversationID }

// EvaluationRoom names the status stream room of an evaluation job.
func EvaluationRoom(jobID string) string { return RoomEvaluationPrefix + jobID }

// Event is the wire frame pushed to clients.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// NewConversationEvent is the payload of chat:new_conversation.
type NewConversationEvent struct {
	Conversation Conversation `json:"conversation"`
	Message      *Message     `json:"message,omitempty"`
}

// MessageDeletedEvent is the payload of chat:message_deleted.
type MessageDeletedEvent struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// TypingEvent is the payload of chat:user_typing.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ResumeStatusEvent is the payload of resume:status.
type ResumeStatusEvent struct {
	JobID     string         `json:"job_id"`
	Step      EvaluationStep `json:"step"`
	Status    JobStatus      `json:"status"`
	Progress  int            `json:"progress"`
	Details   string         `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ConnectedEvent is pushed once after the socket handshake.
type ConnectedEvent struct {
	ConnID string `json:"conn_id"`
	UserID string `json:"user_id"`
}

// InteractionType enumerates notification kinds.
type InteractionType string

const (
	InteractionLike               InteractionType = "like"
	InteractionComment            InteractionType = "comment"
	InteractionMention            InteractionType = "mention"
	InteractionConnectionRequest  InteractionType = "connection_request"
	InteractionConnectionAccepted InteractionType = "connection_accepted"
	InteractionApplicationUpdate  InteractionType = "application_update"
)

// Interaction is the payload of interaction:notification.
type Interaction struct {
	Type        InteractionType `json:"type"`
	ActorID     string          `json:"actor_id"`
	RecipientID string          `json:"recipient_id"`
	EntityID    string          `json:"entity_id,omitempty"`
	Message     string          `json:"message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
