package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/chat"
	"hire-realtime/internal/models"
)

var errBadRequest = apperr.New(apperr.KindValidation, "bad_request", "invalid request body")

// ConversationHandler serves the HTTP mirror of the chat socket events.
type ConversationHandler struct {
	chat   *chat.Coordinator
	logger *zap.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(coordinator *chat.Coordinator, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{chat: coordinator, logger: logger}
}

// Register mounts the conversation routes on an authenticated group.
func (h *ConversationHandler) Register(r gin.IRoutes) {
	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.StartConversation)
	r.POST("/conversations/group", h.CreateGroup)
	r.GET("/conversations/:conversation_id", h.GetConversation)
	r.GET("/conversations/:conversation_id/messages", h.GetMessages)
	r.POST("/conversations/:conversation_id/messages", h.PostMessage)
	r.PATCH("/messages/:message_id", h.UpdateMessage)
	r.DELETE("/messages/:message_id", h.DeleteMessage)
}

// ListConversations returns the caller's conversations, most recent first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	list, err := h.chat.GetUserConversations(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// StartConversation finds or creates a direct conversation.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		RecipientID string          `json:"recipient_id"`
		Content     *models.Content `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, errBadRequest.WithCause(err))
		return
	}

	result, err := h.chat.StartConversation(c.Request.Context(), userIDFromContext(c), req.RecipientID, req.Content)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// CreateGroup creates a group conversation with the caller as creator.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Title     string   `json:"title"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, errBadRequest.WithCause(err))
		return
	}

	conv, err := h.chat.CreateGroupConversation(c.Request.Context(), userIDFromContext(c), req.Title, req.MemberIDs)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.chat.GetConversationDetails(c.Request.Context(), c.Param("conversation_id"), userIDFromContext(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetMessages pages through a conversation, newest first.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	msgs, err := h.chat.GetMessages(c.Request.Context(), c.Param("conversation_id"), userIDFromContext(c), limit, offset)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	limit, offset = chat.NormalizePage(limit, offset)
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "limit": limit, "offset": offset})
}

// PostMessage stores a message and fans it out to the other participants.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content     models.Content `json:"content"`
		IsForwarded bool           `json:"is_forwarded"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, errBadRequest.WithCause(err))
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), c.Param("conversation_id"), userIDFromContext(c), req.Content, req.IsForwarded)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) UpdateMessage(c *gin.Context) {
	var req struct {
		Content models.Content `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, errBadRequest.WithCause(err))
		return
	}

	msg, err := h.chat.UpdateMessage(c.Request.Context(), c.Param("message_id"), userIDFromContext(c), req.Content)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage soft-deletes one of the caller's messages.
func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	if _, err := h.chat.DeleteMessage(c.Request.Context(), c.Param("message_id"), userIDFromContext(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadRequest.WithCause(errors.New("invalid " + key))
	}
	return n, nil
}
