package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/models"
	"hire-realtime/internal/observability"
)

// Inbound is the frame a client sends.
type Inbound struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers exactly one inbound frame.
type Ack struct {
	Event   string    `json:"event"`
	ID      string    `json:"id,omitempty"`
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *AckError `json:"error,omitempty"`
}

type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventHandler serves one inbound event for the calling connection.
type EventHandler func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

var (
	errMalformedFrame = apperr.New(apperr.KindValidation, "malformed_frame", "frame is not a valid event envelope")
	errUnknownEvent   = apperr.New(apperr.KindValidation, "unknown_event", "unknown event")
)

// Router maps inbound event names to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRouter(timeout time.Duration, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{handlers: make(map[string]EventHandler), timeout: timeout, logger: logger}
}

// Handle registers fn for event, replacing any earlier registration.
func (r *Router) Handle(event string, fn EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = fn
}

// Dispatch decodes a frame, runs its handler and acknowledges the sender.
// A failing or panicking handler only affects the triggering connection.
func (r *Router) Dispatch(ctx context.Context, c *Client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
		r.reply(c, in.ID, nil, errMalformedFrame)
		return
	}

	r.mu.RLock()
	fn, ok := r.handlers[in.Event]
	r.mu.RUnlock()
	if !ok {
		r.reply(c, in.ID, nil, errUnknownEvent.WithCause(fmt.Errorf("event %q", in.Event)))
		return
	}

	result, err := r.run(ctx, c, in, fn)
	observability.IncWSEvent("inbound", in.Event)
	r.reply(c, in.ID, result, err)
}

func (r *Router) run(ctx context.Context, c *Client, in Inbound, fn EventHandler) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("socket handler panic",
				zap.String("event", in.Event),
				zap.String("conn_id", c.ID()),
				zap.Any("panic", rec))
			result, err = nil, fmt.Errorf("handler panic: %v", rec)
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return fn(ctx, c, in.Data)
}

func (r *Router) reply(c *Client, id string, result any, err error) {
	ack := Ack{Event: models.EventAck, ID: id, Success: err == nil, Data: result}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			r.logger.Error("socket handler failed", zap.String("conn_id", c.ID()), zap.Error(err))
		}
		ack.Data = nil
		ack.Error = &AckError{Code: apperr.CodeOf(err), Message: apperr.PublicMessage(err)}
	}
	if replyErr := c.Reply(ack); replyErr != nil {
		r.logger.Debug("ack dropped", zap.String("conn_id", c.ID()), zap.Error(replyErr))
	}
}
