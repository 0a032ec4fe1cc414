package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hire-realtime/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditEvent{
			Action:    "audit_test",
			Text:      "audit test",
			RequestID: requestIDFromContext(c),
			UserID:    userIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
