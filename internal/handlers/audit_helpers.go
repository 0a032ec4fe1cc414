package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/middleware"
)

const (
	requestIDContextKey = "request_id"
	adminRole           = "admin"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(middleware.RoleKey) == adminRole
}

// writeError renders err as {"error", "code"} with the status of its kind.
// Untagged errors are logged and reported as internal.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	if apperr.KindOf(err) == apperr.KindInternal && logger != nil {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err))
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err), "code": apperr.CodeOf(err)})
}
