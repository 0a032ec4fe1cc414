package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	grpcclient "hire-realtime/internal/grpc"
	"hire-realtime/internal/models"
	"hire-realtime/internal/observability"
)

// TokenValidator authenticates the socket handshake.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (grpcclient.Identity, error)
}

// SocketHandler upgrades HTTP requests and runs the connection pumps.
type SocketHandler struct {
	hub      *Hub
	router   *Router
	auth     TokenValidator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewSocketHandler constructs a SocketHandler. The built-in join event is
// registered on router.
func NewSocketHandler(hub *Hub, router *Router, auth TokenValidator, logger *zap.Logger) *SocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SocketHandler{
		hub:    hub,
		router: router,
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	router.Handle(models.InboundJoin, h.handleJoin)
	return h
}

// Handle authenticates, upgrades and registers the connection.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("hire-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c.GetHeader("Authorization"), c.Query("token"))
	identity, err := h.auth.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("socket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		Role:        identity.Role,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(h.hub, conn, info)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn("rejecting socket", zap.String("user_id", info.UserID), zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	observability.IncWSActive("socket")
	observability.IncWSEvent("socket", "ws_connect")
	publishWSEvent(ctx, info, "ws_connect", "")
	h.logger.Debug("socket connected", zap.String("conn_id", info.ConnID), zap.String("user_id", info.UserID))

	go client.writePump()
	client.Reply(models.Event{Event: models.EventConnected, Data: models.ConnectedEvent{ConnID: info.ConnID, UserID: info.UserID}})

	go h.serve(client)
}

func (h *SocketHandler) serve(client *Client) {
	info := client.Info()
	connCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.Done()
		cancel()
	}()

	var closeReason string
	defer func() {
		cancel()
		client.Close()
		h.hub.Unregister(client)
		observability.DecWSActive("socket")
		observability.IncWSEvent("socket", "ws_disconnect")
		publishWSEvent(context.Background(), info, "ws_disconnect", closeReason)
		h.logger.Debug("socket disconnected", zap.String("conn_id", info.ConnID), zap.String("reason", closeReason))
	}()

	if err := client.readPump(connCtx, h.router); err != nil {
		closeReason = err.Error()
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			observability.IncWSEvent("socket", "ws_error")
			publishWSEvent(context.Background(), info, "ws_error", closeReason)
		}
	}
}

// handleJoin re-joins the caller's personal room. Clients may only join their own.
func (h *SocketHandler) handleJoin(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
	room := models.UserRoom(c.UserID())
	if err := h.hub.Join(c.ID(), room); err != nil {
		return nil, err
	}
	return gin.H{"room": room}, nil
}

func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "socket",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"role":      info.Role,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, "ws_events.socket",
		observability.NewEnvelope("ws_events", event, payload),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}
