package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/models"
	"hire-realtime/internal/observability"
	"hire-realtime/internal/repositories"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	maxTitleLength  = 200

	ActionSendMessage = "chat:send_message"
)

var (
	ErrConversationNotFound = apperr.New(apperr.KindNotFound, "conversation_not_found", "conversation not found")
	ErrMessageNotFound      = apperr.New(apperr.KindNotFound, "message_not_found", "message not found")
	ErrNotParticipant       = apperr.New(apperr.KindForbidden, "not_participant", "user is not a participant of this conversation")
	ErrNotSender            = apperr.New(apperr.KindForbidden, "not_sender", "only the sender can modify this message")
	ErrSelfConversation     = apperr.New(apperr.KindValidation, "self_conversation", "cannot start a conversation with yourself")
	ErrRecipientRequired    = apperr.New(apperr.KindValidation, "recipient_required", "recipient_id is required")
	ErrInvalidGroup         = apperr.New(apperr.KindValidation, "invalid_group", "group needs a title and at least one other member")
	ErrRateLimited          = apperr.New(apperr.KindRateLimited, "rate_limited", "too many messages, slow down")
)

// Broadcaster delivers events to connected users and rooms.
type Broadcaster interface {
	BroadcastToUser(userID, event string, payload any)
	BroadcastExceptUser(room, event string, payload any, exceptUserID string)
}

// Limiter is an optional per-(subject, action) admission check.
type Limiter interface {
	Allow(subject, action string) (bool, time.Duration)
}

// StartResult is returned by StartConversation.
type StartResult struct {
	Conversation models.Conversation `json:"conversation"`
	Message      *models.Message     `json:"message,omitempty"`
	IsNew        bool                `json:"is_new"`
}

// Coordinator runs conversation and message lifecycle operations and fans
// the resulting events out to participants.
type Coordinator struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	bus           Broadcaster
	limiter       Limiter
	logger        *zap.Logger
}

type Option func(*Coordinator)

// WithLimiter rate-limits SendMessage per sender.
func WithLimiter(l Limiter) Option {
	return func(c *Coordinator) { c.limiter = l }
}

func NewCoordinator(conversations repositories.ConversationRepository, messages repositories.MessageRepository, bus Broadcaster, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{conversations: conversations, messages: messages, bus: bus, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartConversation finds or creates the direct conversation between two
// users and optionally appends an initial message. Only the recipient is
// notified.
func (c *Coordinator) StartConversation(ctx context.Context, initiatorID, recipientID string, initial *models.Content) (StartResult, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return StartResult{}, ErrRecipientRequired
	}
	if recipientID == initiatorID {
		return StartResult{}, ErrSelfConversation
	}
	if initial != nil {
		if err := initial.Validate(); err != nil {
			return StartResult{}, err
		}
	}

	conv, created, err := c.conversations.FindOrCreateDirect(ctx, initiatorID, recipientID)
	if err != nil {
		return StartResult{}, mapStoreErr("find or create conversation", err)
	}
	result := StartResult{Conversation: conv, IsNew: created}

	if initial != nil {
		msg, err := c.messages.CreateMessage(ctx, conv.ID, initiatorID, *initial, false)
		if err != nil {
			return StartResult{}, mapStoreErr("create initial message", err)
		}
		result.Message = &msg
	}

	switch {
	case created:
		c.bus.BroadcastToUser(recipientID, models.EventNewConversation, models.NewConversationEvent{
			Conversation: conv,
			Message:      result.Message,
		})
	case result.Message != nil:
		c.bus.BroadcastToUser(recipientID, models.EventNewMessage, *result.Message)
	}

	c.logger.Debug("conversation started",
		zap.String("conversation_id", conv.ID),
		zap.String("initiator_id", initiatorID),
		zap.Bool("is_new", created))
	return result, nil
}

// CreateGroupConversation creates a group thread and notifies every member
// except the creator.
func (c *Coordinator) CreateGroupConversation(ctx context.Context, creatorID, title string, memberIDs []string) (models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return models.Conversation{}, ErrInvalidGroup
	}
	others := 0
	for _, id := range memberIDs {
		if id = strings.TrimSpace(id); id != "" && id != creatorID {
			others++
		}
	}
	if others == 0 {
		return models.Conversation{}, ErrInvalidGroup
	}

	conv, err := c.conversations.CreateGroup(ctx, creatorID, title, memberIDs)
	if err != nil {
		return models.Conversation{}, mapStoreErr("create group", err)
	}
	for _, userID := range conv.ParticipantIDs() {
		if userID != creatorID {
			c.bus.BroadcastToUser(userID, models.EventNewConversation, models.NewConversationEvent{Conversation: conv})
		}
	}
	return conv, nil
}

// SendMessage persists a message and delivers it to every participant but the sender.
func (c *Coordinator) SendMessage(ctx context.Context, conversationID, senderID string, content models.Content, isForwarded bool) (models.Message, error) {
	if err := content.Validate(); err != nil {
		return models.Message{}, err
	}

	conv, err := c.participantConversation(ctx, conversationID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	if c.limiter != nil {
		if ok, retryAfter := c.limiter.Allow(senderID, ActionSendMessage); !ok {
			observability.IncRateLimited(ActionSendMessage)
			return models.Message{}, ErrRateLimited.WithCause(fmt.Errorf("retry after %s", retryAfter.Round(time.Second)))
		}
	}

	msg, err := c.messages.CreateMessage(ctx, conv.ID, senderID, content, isForwarded)
	if err != nil {
		return models.Message{}, mapStoreErr("create message", err)
	}

	for _, userID := range conv.ParticipantIDs() {
		if userID != senderID {
			c.bus.BroadcastToUser(userID, models.EventNewMessage, msg)
		}
	}
	return msg, nil
}

// UpdateMessage edits a live message owned by senderID and syncs every
// participant, the sender's other devices included.
func (c *Coordinator) UpdateMessage(ctx context.Context, messageID, senderID string, content models.Content) (models.Message, error) {
	if err := content.Validate(); err != nil {
		return models.Message{}, err
	}
	if _, err := c.ownedMessage(ctx, messageID, senderID); err != nil {
		return models.Message{}, err
	}

	updated, err := c.messages.UpdateMessage(ctx, messageID, content)
	if err != nil {
		return models.Message{}, mapStoreErr("update message", err)
	}
	c.broadcastToParticipants(ctx, updated.ConversationID, models.EventMessageUpdated, updated)
	return updated, nil
}

// DeleteMessage soft-deletes a message owned by senderID.
func (c *Coordinator) DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error) {
	if _, err := c.ownedMessage(ctx, messageID, senderID); err != nil {
		return models.Message{}, err
	}

	deleted, err := c.messages.DeleteMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, mapStoreErr("delete message", err)
	}
	c.broadcastToParticipants(ctx, deleted.ConversationID, models.EventMessageDeleted, models.MessageDeletedEvent{
		MessageID:      deleted.ID,
		ConversationID: deleted.ConversationID,
	})
	return deleted, nil
}

// GetConversationDetails returns a conversation visible to userID.
func (c *Coordinator) GetConversationDetails(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	return c.participantConversation(ctx, conversationID, userID)
}

// GetUserConversations lists userID's conversations, most recently active first.
func (c *Coordinator) GetUserConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	list, err := c.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, mapStoreErr("list conversations", err)
	}
	return list, nil
}

// GetMessages pages through non-deleted messages, newest first
// (created_at DESC, id DESC).
func (c *Coordinator) GetMessages(ctx context.Context, conversationID, userID string, limit, offset int) ([]models.Message, error) {
	if _, err := c.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	limit, offset = NormalizePage(limit, offset)
	msgs, err := c.messages.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, mapStoreErr("list messages", err)
	}
	return msgs, nil
}

// Typing relays an ephemeral typing indicator to the conversation room,
// skipping every connection of the typist.
func (c *Coordinator) Typing(ctx context.Context, conversationID, userID string, isTyping bool) error {
	if _, err := c.participantConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	c.bus.BroadcastExceptUser(models.ConversationRoom(conversationID), models.EventUserTyping, models.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	}, userID)
	return nil
}

// NormalizePage applies the default and maximum page size.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (c *Coordinator) participantConversation(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	conv, err := c.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, mapStoreErr("get conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// ownedMessage loads a live message and checks that senderID wrote it.
// Deleted messages read as not found.
func (c *Coordinator) ownedMessage(ctx context.Context, messageID, senderID string) (models.Message, error) {
	msg, err := c.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, mapStoreErr("get message", err)
	}
	if msg.IsDeleted() {
		return models.Message{}, ErrMessageNotFound
	}
	if msg.SenderID != senderID {
		return models.Message{}, ErrNotSender
	}
	return msg, nil
}

func (c *Coordinator) broadcastToParticipants(ctx context.Context, conversationID, event string, payload any) {
	conv, err := c.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		c.logger.Warn("fan-out skipped", zap.String("conversation_id", conversationID), zap.String("event", event), zap.Error(err))
		return
	}
	for _, userID := range conv.ParticipantIDs() {
		c.bus.BroadcastToUser(userID, event, payload)
	}
}

func mapStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		return ErrConversationNotFound
	case errors.Is(err, repositories.ErrMessageNotFound):
		return ErrMessageNotFound
	case errors.Is(err, repositories.ErrSelfConversation):
		return ErrSelfConversation
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
