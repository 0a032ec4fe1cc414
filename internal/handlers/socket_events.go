package handlers

import (
	"context"
	"encoding/json"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/chat"
	"hire-realtime/internal/evaluation"
	"hire-realtime/internal/models"
	"hire-realtime/internal/ws"
)

var (
	errInvalidPayload = apperr.New(apperr.KindValidation, "invalid_payload", "invalid event payload")
	errNotJoined      = apperr.New(apperr.KindForbidden, "not_joined", "join the conversation before typing")
)

// SocketEvents binds the inbound chat and resume events to the services.
type SocketEvents struct {
	hub      *ws.Hub
	chat     *chat.Coordinator
	reporter *evaluation.Reporter
}

func NewSocketEvents(hub *ws.Hub, coordinator *chat.Coordinator, reporter *evaluation.Reporter) *SocketEvents {
	return &SocketEvents{hub: hub, chat: coordinator, reporter: reporter}
}

// Register installs every handler on router.
func (s *SocketEvents) Register(router *ws.Router) {
	router.Handle(models.InboundStartConversation, s.startConversation)
	router.Handle(models.InboundSendMessage, s.sendMessage)
	router.Handle(models.InboundJoinConversation, s.joinConversation)
	router.Handle(models.InboundLeaveConversation, s.leaveConversation)
	router.Handle(models.InboundUpdateMessage, s.updateMessage)
	router.Handle(models.InboundDeleteMessage, s.deleteMessage)
	router.Handle(models.InboundTyping, s.typing)
	router.Handle(models.InboundResumeWatch, s.resumeWatch)
}

type conversationRef struct {
	ConversationID string `json:"conversation_id"`
}

func (s *SocketEvents) startConversation(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		RecipientID string          `json:"recipient_id"`
		Content     *models.Content `json:"content"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return s.chat.StartConversation(ctx, c.UserID(), req.RecipientID, req.Content)
}

func (s *SocketEvents) sendMessage(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		ConversationID string         `json:"conversation_id"`
		Content        models.Content `json:"content"`
		IsForwarded    bool           `json:"is_forwarded"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return s.chat.SendMessage(ctx, req.ConversationID, c.UserID(), req.Content, req.IsForwarded)
}

// joinConversation subscribes the connection to typing events of a
// conversation the caller participates in.
func (s *SocketEvents) joinConversation(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req conversationRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	conv, err := s.chat.GetConversationDetails(ctx, req.ConversationID, c.UserID())
	if err != nil {
		return nil, err
	}
	room := models.ConversationRoom(conv.ID)
	if err := s.hub.Join(c.ID(), room); err != nil {
		return nil, err
	}
	return map[string]string{"room": room}, nil
}

func (s *SocketEvents) leaveConversation(_ context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req conversationRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	room := models.ConversationRoom(req.ConversationID)
	s.hub.Leave(c.ID(), room)
	return map[string]string{"room": room}, nil
}

func (s *SocketEvents) updateMessage(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		MessageID string         `json:"message_id"`
		Content   models.Content `json:"content"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return s.chat.UpdateMessage(ctx, req.MessageID, c.UserID(), req.Content)
}

func (s *SocketEvents) deleteMessage(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	msg, err := s.chat.DeleteMessage(ctx, req.MessageID, c.UserID())
	if err != nil {
		return nil, err
	}
	return models.MessageDeletedEvent{MessageID: msg.ID, ConversationID: msg.ConversationID}, nil
}

func (s *SocketEvents) typing(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		IsTyping       bool   `json:"is_typing"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if !s.hub.InRoom(c.ID(), models.ConversationRoom(req.ConversationID)) {
		return nil, errNotJoined
	}
	if err := s.chat.Typing(ctx, req.ConversationID, c.UserID(), req.IsTyping); err != nil {
		return nil, err
	}
	return nil, nil
}

// resumeWatch joins the evaluation room of a job owned by the caller, or of
// any job for admins, and answers with the current status.
func (s *SocketEvents) resumeWatch(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	status, err := s.reporter.GetJobStatus(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if status == nil || (status.Payload.UserID != c.UserID() && c.Info().Role != adminRole) {
		return nil, evaluation.ErrJobNotFound
	}
	if err := s.hub.Join(c.ID(), models.EvaluationRoom(status.JobID)); err != nil {
		return nil, err
	}
	return status, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errInvalidPayload.WithCause(err)
	}
	return nil
}
