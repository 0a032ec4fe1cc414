package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter ships audit envelopes for privileged or user-visible actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string            `json:"level"`
	Action string            `json:"action"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Name identifies the envelope in logs.
func (e AuditEnvelope) Name() string {
	return e.EventType + "." + e.Payload.Action
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// AuditEvent describes one audited action.
type AuditEvent struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    string
	Fields    map[string]string
}

// Emit is safe on a nil emitter. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, ev AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}
	if ev.Level == "" {
		ev.Level = "INFO"
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     ev.RequestID,
		Payload: AuditPayload{
			Level:  ev.Level,
			Action: ev.Action,
			Text:   ev.Text,
			Fields: ev.Fields,
		},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}
	if ev.UserID != "" {
		userID := ev.UserID
		envelope.UserID = &userID
	}

	e.logger.Debug("audit emit",
		zap.String("action", ev.Action),
		zap.String("level", ev.Level),
		zap.String("request_id", ev.RequestID),
		zap.String("user_id", ev.UserID))
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", zap.String("action", ev.Action), zap.Error(err))
	}
}
