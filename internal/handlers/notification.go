package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/models"
	"hire-realtime/internal/notify"
)

var errActorForbidden = apperr.New(apperr.KindForbidden, "actor_forbidden", "cannot notify on behalf of another user")

// NotificationHandler lets other services push interaction notifications.
type NotificationHandler struct {
	notifier *notify.Notifier
	logger   *zap.Logger
}

func NewNotificationHandler(notifier *notify.Notifier, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{notifier: notifier, logger: logger}
}

func (h *NotificationHandler) Register(r gin.IRoutes) {
	r.POST("/notifications", h.Create)
}

// Create delivers an interaction to its recipient. The actor is the caller;
// only admins may name another actor.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req models.Interaction
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, errBadRequest.WithCause(err))
		return
	}
	caller := userIDFromContext(c)
	switch {
	case req.ActorID == "":
		req.ActorID = caller
	case req.ActorID != caller && !isAdmin(c):
		writeError(c, h.logger, errActorForbidden)
		return
	}

	delivered, err := h.notifier.Notify(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}
