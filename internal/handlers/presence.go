package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hire-realtime/internal/ws"
)

// PresenceHandler answers online-status lookups from the presence registry.
type PresenceHandler struct {
	presence *ws.Presence
}

func NewPresenceHandler(presence *ws.Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

func (h *PresenceHandler) Register(r gin.IRoutes) {
	r.GET("/presence", h.Online)
	r.GET("/presence/:user_id", h.Status)
}

func (h *PresenceHandler) Status(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, gin.H{
		"user_id":     userID,
		"online":      h.presence.IsOnline(userID),
		"connections": h.presence.ConnectionCount(userID),
	})
}

// Online lists every user with at least one live connection.
func (h *PresenceHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.presence.AllOnlineUsers()})
}
