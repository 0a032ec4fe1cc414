package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"hire-realtime/internal/config"
)

type capturePublisher struct {
	routingKey string
	events     []any
	err        error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.events = append(p.events, event)
	return p.err
}

func TestAuditEmitterBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.realtime", "hire-realtime", "test", nil)

	emitter.Emit(context.Background(), AuditEvent{
		Action:    "queue_cleanup",
		Text:      "removed 3 jobs",
		RequestID: "req-1",
		UserID:    "admin-1",
		Fields:    map[string]string{"removed": "3"},
	})

	require.Len(t, pub.events, 1)
	assert.Equal(t, "audit.realtime", pub.routingKey)
	env := pub.events[0].(AuditEnvelope)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "INFO", env.Payload.Level)
	assert.Equal(t, "queue_cleanup", env.Payload.Action)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "admin-1", *env.UserID)
	assert.Equal(t, "audit_log.queue_cleanup", env.Name())
}

func TestAuditEmitterToleratesFailuresAndNil(t *testing.T) {
	var nilEmitter *AuditEmitter
	nilEmitter.Emit(context.Background(), AuditEvent{Action: "noop"})

	pub := &capturePublisher{err: errors.New("broker down")}
	NewAuditEmitter(pub, "audit.realtime", "svc", "test", nil).Emit(context.Background(), AuditEvent{Action: "x"})
	assert.Len(t, pub.events, 1)
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "svc", "test", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestAuditEmitterCarriesTraceID(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	pub := &capturePublisher{}
	NewAuditEmitter(pub, "audit.realtime", "svc", "test", nil).Emit(ctx, AuditEvent{Action: "x"})

	require.Len(t, pub.events, 1)
	assert.Equal(t, traceID.String(), pub.events[0].(AuditEnvelope).TraceID)
}
